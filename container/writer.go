package container

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/PowerDNS/pbz/frame"
	"github.com/PowerDNS/pbz/registry"
)

// Writer writes a PBZ container.
// Close must be called to write the gzip trailer, without it the output is
// not a valid container.
type Writer struct {
	gz       *gzip.Writer
	file     io.Closer // only set when we created the file
	registry *registry.Registry
	logger   logrus.FieldLogger
	flush    bool

	lastName  string          // last emitted type name, without leading dot
	sentFiles map[string]bool // file paths shipped by RegisterDescriptor
	closed    bool
	stats     Stats
}

// NewWriter creates a Writer and immediately writes the magic bytes
func NewWriter(w io.Writer, opts ...Option) (*Writer, error) {
	o := newOptions(opts)
	gz, err := gzip.NewWriterLevel(w, o.CompressionLevel)
	if err != nil {
		return nil, err
	}
	wr := &Writer{
		gz:        gz,
		registry:  registry.New(),
		logger:    o.Logger,
		flush:     o.FlushEachFrame,
		sentFiles: make(map[string]bool),
	}
	wr.registry.SetLogger(o.Logger)
	if err := frame.WriteMagic(gz); err != nil {
		return nil, errors.Wrap(err, "write magic")
	}
	if wr.flush {
		if err := gz.Flush(); err != nil {
			return nil, errors.Wrap(err, "write magic")
		}
	}
	return wr, nil
}

// Create creates or truncates a container file. The file is closed by Close.
func Create(path string, opts ...Option) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	wr, err := NewWriter(f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, path)
	}
	wr.file = f
	return wr, nil
}

func (w *Writer) writeFrame(f frame.Frame) error {
	if w.closed {
		return ErrClosed
	}
	if err := frame.Write(w.gz, f); err != nil {
		return errors.Wrapf(err, "write %s frame", f.Type())
	}
	payloadLen := len(f.Payload())
	w.stats.add(f.Type(), payloadLen)
	metricFramesWritten.WithLabelValues(f.Type().String()).Inc()
	metricPayloadBytesWritten.Add(float64(payloadLen))
	if w.flush {
		return w.gz.Flush()
	}
	return nil
}

// RegisterSchema registers a serialized google.protobuf.FileDescriptorSet,
// as produced by `protoc --descriptor_set_out`. The bytes are written
// verbatim.
func (w *Writer) RegisterSchema(set []byte) error {
	if w.closed {
		return ErrClosed
	}
	before := w.registry.Len()
	if err := w.registry.Register(set); err != nil {
		return err
	}
	w.logger.WithFields(logrus.Fields{
		"new_types":   w.registry.Len() - before,
		"total_types": w.registry.Len(),
	}).Debug("Writing schema")
	return w.writeFrame(frame.FileDescriptor{Set: set})
}

// RegisterSchemaFile registers a file descriptor set stored in a file
func (w *Writer) RegisterSchemaFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return errors.Wrap(w.RegisterSchema(data), path)
}

// RegisterSet registers all files in the set
func (w *Writer) RegisterSet(set *descriptorpb.FileDescriptorSet) error {
	data, err := proto.Marshal(set)
	if err != nil {
		return errors.Wrap(err, "marshal file descriptor set")
	}
	return w.RegisterSchema(data)
}

// RegisterFile registers a single file, wrapped in a one-entry set
func (w *Writer) RegisterFile(fdp *descriptorpb.FileDescriptorProto) error {
	return w.RegisterSet(&descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{fdp},
	})
}

// RegisterDescriptor registers a file together with all the files it
// imports, dependencies first. Files already shipped by an earlier call are
// skipped. If nothing new remains, no frame is written.
func (w *Writer) RegisterDescriptor(fd protoreflect.FileDescriptor) error {
	var files []*descriptorpb.FileDescriptorProto
	seen := make(map[string]bool)
	var visit func(fd protoreflect.FileDescriptor)
	visit = func(fd protoreflect.FileDescriptor) {
		path := fd.Path()
		if fd.IsPlaceholder() || seen[path] || w.sentFiles[path] {
			return
		}
		seen[path] = true
		imports := fd.Imports()
		for i := 0; i < imports.Len(); i++ {
			visit(imports.Get(i).FileDescriptor)
		}
		files = append(files, protodesc.ToFileDescriptorProto(fd))
	}
	visit(fd)
	if len(files) == 0 {
		return nil
	}
	if err := w.RegisterSet(&descriptorpb.FileDescriptorSet{File: files}); err != nil {
		return err
	}
	for path := range seen {
		w.sentFiles[path] = true
	}
	return nil
}

// RegisterMessage registers the schema file that defines the type of m,
// including its imports.
func (w *Writer) RegisterMessage(m proto.Message) error {
	return w.RegisterDescriptor(m.ProtoReflect().Descriptor().ParentFile())
}

// Write writes a message. A DescriptorName frame is only written when the
// type differs from the previous message.
// Writing a type that was never registered panics: the stream would not be
// decodable, which can only be a programming error.
func (w *Writer) Write(m proto.Message) error {
	if w.closed {
		return ErrClosed
	}
	name := string(m.ProtoReflect().Descriptor().FullName())
	if name != w.lastName {
		if !w.registry.HasMessage(name) {
			panic(fmt.Sprintf("container: writing message of type %q that was never registered", name))
		}
		if err := w.writeFrame(frame.DescriptorName{Name: name}); err != nil {
			return err
		}
		w.lastName = name
	}
	data, err := proto.Marshal(m)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", name)
	}
	return w.writeFrame(frame.Message{Data: data})
}

// WriteProtobufVersion writes a version marker frame. Readers keep it for
// diagnostics only.
func (w *Writer) WriteProtobufVersion(version string) error {
	return w.writeFrame(frame.ProtobufVersion{Version: version})
}

// Flush flushes the compressor without closing the stream
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	return w.gz.Flush()
}

// Registry returns the schemas registered so far
func (w *Writer) Registry() *registry.Registry {
	return w.registry
}

// Stats returns the counters for this Writer
func (w *Writer) Stats() Stats {
	return w.stats
}

// Close writes the gzip trailer and closes the file if opened with Create.
// It does not close an io.Writer passed to NewWriter.
// It is safe to call Close more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.gz.Close()
	if w.file != nil {
		if ferr := w.file.Close(); err == nil {
			err = ferr
		}
		w.file = nil
	}
	return err
}
