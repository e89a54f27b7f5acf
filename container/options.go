package container

import (
	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/PowerDNS/pbz/frame"
	"github.com/PowerDNS/pbz/registry"
)

// Options configures a Reader or Writer. Fields that do not apply to one
// side are ignored.
type Options struct {
	// Reader
	Limits       frame.Limits
	ValueDecoder registry.ValueDecoder // defaults to the Reader's own registry

	// Writer
	CompressionLevel int
	FlushEachFrame   bool

	Logger logrus.FieldLogger
}

// Option modifies Options
type Option func(o *Options)

func newOptions(opts []Option) Options {
	o := Options{
		Limits:           frame.DefaultLimits(),
		CompressionLevel: gzip.DefaultCompression,
		FlushEachFrame:   true,
		Logger:           logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLimits sets the frame limits for reading
func WithLimits(l frame.Limits) Option {
	return func(o *Options) {
		o.Limits = l
	}
}

// WithValueDecoder replaces the decoder used by Reader.NextValue
func WithValueDecoder(d registry.ValueDecoder) Option {
	return func(o *Options) {
		o.ValueDecoder = d
	}
}

// WithCompressionLevel sets the gzip compression level for writing
func WithCompressionLevel(level int) Option {
	return func(o *Options) {
		o.CompressionLevel = level
	}
}

// WithFrameFlush controls if the compressor is flushed after every frame.
// This is the default, so that an interrupted writer never leaves a
// complete frame behind in the compressor buffers. Disabling it gives much
// better compression for small messages.
func WithFrameFlush(enabled bool) Option {
	return func(o *Options) {
		o.FlushEachFrame = enabled
	}
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}
