package reactor

import "go.uber.org/zap/zapcore"

// Options collects the knobs NewTcpServer accepts beyond the required
// loop/listenAddr/name trio: thread count, connection buffer sizing and the
// log level the server's own diagnostics are emitted at. Zero value is the
// same as passing no Option at all.
type Options struct {
	threadNum      int
	readBufferSize int
	writeHighWater int
	logLevel       zapcore.Level
}

// Option mutates an Options during NewTcpServerWithOptions, the functional
// option pattern used throughout the pack for optional server config.
type Option func(*Options)

// WithThreadNum sets the size of the server's EventLoopThreadPool; 0 (the
// default) runs every connection on the base loop, same as SetThreadNum(0).
func WithThreadNum(n int) Option {
	return func(o *Options) { o.threadNum = n }
}

// WithReadBufferSize overrides the initial capacity a TcpConnection's input
// Buffer is allocated with, in bytes.
func WithReadBufferSize(n int) Option {
	return func(o *Options) { o.readBufferSize = n }
}

// WithWriteHighWaterMark overrides the output-buffer size, in bytes, at
// which a connection's HighWaterMarkHandler (see SetHighWaterMarkCallback)
// fires.
func WithWriteHighWaterMark(n int) Option {
	return func(o *Options) { o.writeHighWater = n }
}

// WithLogLevel sets the threshold for this server's connection lifecycle
// logs in server.go (new and removed connections, logged at Info): a level
// above Info suppresses them. It does not affect the package-level base.L()
// level.
func WithLogLevel(level zapcore.Level) Option {
	return func(o *Options) { o.logLevel = level }
}

func defaultOptions() Options {
	return Options{
		threadNum:      0,
		readBufferSize: bufferInitialSize,
		writeHighWater: 64 * 1024 * 1024,
		logLevel:       zapcore.InfoLevel,
	}
}

// NewTcpServerWithOptions is NewTcpServer plus functional Options, for
// callers that want thread count / buffer sizing / log level set up front
// rather than through the individual setters.
func NewTcpServerWithOptions(loop *EventLoop, listenAddr InetAddress, name string, opts ...Option) *TcpServer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := NewTcpServer(loop, listenAddr, name)
	s.opts = o
	if o.threadNum > 0 {
		s.SetThreadNum(o.threadNum)
	}
	return s
}
