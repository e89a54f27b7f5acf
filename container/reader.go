package container

import (
	"bufio"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"

	"github.com/PowerDNS/pbz/frame"
	"github.com/PowerDNS/pbz/registry"
)

// State is the state of a Reader
type State int

const (
	StateAwaitingMagic State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingMagic:
		return "awaiting_magic"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Reader reads the messages from a PBZ container.
// Schema frames are consumed internally, only messages are returned.
type Reader struct {
	src      *bufio.Reader
	gz       *gzip.Reader
	file     io.Closer // only set when we opened the file
	registry *registry.Registry
	values   registry.ValueDecoder
	limits   frame.Limits
	logger   logrus.FieldLogger

	state    State
	err      error  // terminal error, set when state is StateClosed
	typeName string // active type name, with leading dot
	version  string
	stats    Stats
}

// NewReader creates a Reader on top of a gzip compressed container stream.
// The magic bytes are checked before it returns.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	o := newOptions(opts)
	rd := &Reader{
		registry: registry.New(),
		limits:   o.Limits,
		logger:   o.Logger,
		state:    StateAwaitingMagic,
	}
	rd.registry.SetLogger(o.Logger)
	rd.values = o.ValueDecoder
	if rd.values == nil {
		rd.values = rd.registry
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF // not even a gzip header
		}
		rd.closeWith(err)
		return nil, errors.Wrap(err, "open gzip stream")
	}
	rd.gz = gz
	rd.src = bufio.NewReader(gz)
	if err := frame.ReadMagic(rd.src); err != nil {
		rd.closeWith(err)
		_ = gz.Close()
		return nil, err
	}
	rd.state = StateStreaming
	return rd, nil
}

// Open opens a container file. The file is closed by Close.
func Open(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := NewReader(f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, path)
	}
	rd.file = f
	return rd, nil
}

// closeWith moves the reader into the closed state. Only the first terminal
// error is kept and counted.
func (r *Reader) closeWith(err error) error {
	if r.state == StateClosed {
		return r.err
	}
	r.state = StateClosed
	r.err = err
	if err != io.EOF && err != ErrClosed {
		metricReadErrors.WithLabelValues(ErrorKind(err)).Inc()
	}
	return err
}

// nextMessage consumes frames until the next message frame
func (r *Reader) nextMessage() ([]byte, error) {
	if r.state == StateClosed {
		return nil, r.err
	}
	for {
		f, err := frame.Read(r.src, r.limits)
		if err != nil {
			return nil, r.closeWith(err)
		}
		payloadLen := len(f.Payload())
		r.stats.add(f.Type(), payloadLen)
		metricFramesRead.WithLabelValues(f.Type().String()).Inc()
		metricPayloadBytesRead.Add(float64(payloadLen))

		switch f := f.(type) {
		case frame.FileDescriptor:
			before := r.registry.Len()
			if err := r.registry.Register(f.Set); err != nil {
				return nil, r.closeWith(errors.Wrap(err, "register schema"))
			}
			r.logger.WithFields(logrus.Fields{
				"new_types":   r.registry.Len() - before,
				"total_types": r.registry.Len(),
			}).Debug("Registered schema")
		case frame.DescriptorName:
			r.typeName = "." + f.Name
		case frame.ProtobufVersion:
			r.version = f.Version
			r.logger.WithField("protobuf_version", f.Version).Debug("Producer protobuf version")
		case frame.Message:
			return f.Data, nil
		}
	}
}

// NextRaw returns the next message payload together with the active type
// name (with leading dot). It returns io.EOF at the end of the stream.
func (r *Reader) NextRaw() (typeName string, data []byte, err error) {
	data, err = r.nextMessage()
	if err != nil {
		return "", nil, err
	}
	return r.typeName, data, nil
}

// NextInto decodes the next message into m. The schemas in the stream and
// the active type name are not used, the caller is responsible for passing
// the right type. A decode failure does not close the Reader.
func (r *Reader) NextInto(m proto.Message) error {
	data, err := r.nextMessage()
	if err != nil {
		return err
	}
	if err := proto.Unmarshal(data, m); err != nil {
		metricReadErrors.WithLabelValues(KindDecodeFailure).Inc()
		return registry.DecodeError{
			Name:   "." + string(m.ProtoReflect().Descriptor().FullName()),
			Reason: err.Error(),
		}
	}
	return nil
}

// NextValue decodes the next message into a generic structured value using
// the schemas found in the stream. Unknown types fail with an error matching
// registry.ErrUnresolvedType, other decode failures match
// registry.ErrDecodeFailure. Neither closes the Reader.
func (r *Reader) NextValue() (any, error) {
	data, err := r.nextMessage()
	if err != nil {
		return nil, err
	}
	v, err := r.values.DecodeValue(r.typeName, data)
	if err != nil {
		metricReadErrors.WithLabelValues(ErrorKind(err)).Inc()
		return nil, err
	}
	return v, nil
}

// TypeName returns the active type name, with leading dot
func (r *Reader) TypeName() string {
	return r.typeName
}

// ProtobufVersion returns the last protobuf version marker seen, if any
func (r *Reader) ProtobufVersion() string {
	return r.version
}

// Registry returns the schemas registered so far
func (r *Reader) Registry() *registry.Registry {
	return r.registry
}

// State returns the current state
func (r *Reader) State() State {
	return r.state
}

// Err returns the error that closed the Reader, or nil while streaming.
// After a clean end of stream this is io.EOF.
func (r *Reader) Err() error {
	return r.err
}

// Stats returns the counters for this Reader
func (r *Reader) Stats() Stats {
	return r.stats
}

// Close releases the decompressor and the file if opened with Open.
// It is safe to call Close more than once.
func (r *Reader) Close() error {
	r.closeWith(ErrClosed)
	var err error
	if r.gz != nil {
		err = r.gz.Close()
		r.gz = nil
	}
	if r.file != nil {
		if ferr := r.file.Close(); err == nil {
			err = ferr
		}
		r.file = nil
	}
	return err
}
