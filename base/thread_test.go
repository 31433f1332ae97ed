package base

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoIDStableWithinGoroutine(t *testing.T) {
	id1 := GoID()
	id2 := GoID()
	require.Equal(t, id1, id2)
}

func TestGoIDDiffersAcrossGoroutines(t *testing.T) {
	mainID := GoID()

	var otherID uint64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		otherID = GoID()
	}()
	wg.Wait()

	require.NotEqual(t, mainID, otherID)
}
