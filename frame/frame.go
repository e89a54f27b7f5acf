package frame

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/c2h5oh/datasize"
)

// Type is the one byte tag in front of every frame
type Type uint8

// Frame type tags
const (
	TypeFileDescriptor  Type = 1
	TypeDescriptorName  Type = 2
	TypeMessage         Type = 3
	TypeProtobufVersion Type = 4
)

// Types lists all known frame types in tag order
var Types = []Type{TypeFileDescriptor, TypeDescriptorName, TypeMessage, TypeProtobufVersion}

func (t Type) String() string {
	switch t {
	case TypeFileDescriptor:
		return "file_descriptor"
	case TypeDescriptorName:
		return "descriptor_name"
	case TypeMessage:
		return "message"
	case TypeProtobufVersion:
		return "protobuf_version"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Known reports if t is one of the defined frame types
func (t Type) Known() bool {
	return t >= TypeFileDescriptor && t <= TypeProtobufVersion
}

// Magic are the first two bytes of every decompressed container
var Magic = []byte{0x41, 0x42}

// ReadMagic reads and checks the magic bytes.
// A stream shorter than the magic is reported as ErrInvalidMagic too.
func ReadMagic(r io.Reader) error {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrInvalidMagic
		}
		return err
	}
	if !bytes.Equal(buf[:], Magic) {
		return ErrInvalidMagic
	}
	return nil
}

// WriteMagic writes the magic bytes
func WriteMagic(w io.Writer) error {
	_, err := w.Write(Magic)
	return err
}

// Frame is one decoded frame. The concrete type is one of FileDescriptor,
// DescriptorName, Message or ProtobufVersion.
type Frame interface {
	Type() Type
	Payload() []byte
}

// FileDescriptor carries a serialized google.protobuf.FileDescriptorSet
type FileDescriptor struct {
	Set []byte
}

func (f FileDescriptor) Type() Type      { return TypeFileDescriptor }
func (f FileDescriptor) Payload() []byte { return f.Set }

// DescriptorName sets the fully-qualified type name (without leading dot)
// for the messages that follow.
type DescriptorName struct {
	Name string
}

func (f DescriptorName) Type() Type      { return TypeDescriptorName }
func (f DescriptorName) Payload() []byte { return []byte(f.Name) }

// Message carries one serialized protobuf message
type Message struct {
	Data []byte
}

func (f Message) Type() Type      { return TypeMessage }
func (f Message) Payload() []byte { return f.Data }

// ProtobufVersion carries the protobuf library version of the producer.
// It is informational only.
type ProtobufVersion struct {
	Version string
}

func (f ProtobufVersion) Type() Type      { return TypeProtobufVersion }
func (f ProtobufVersion) Payload() []byte { return []byte(f.Version) }

// DefaultMaxPayloadSize is the default limit for a single frame payload
const DefaultMaxPayloadSize = datasize.GB

// Limits constrains memory use while decoding frames
type Limits struct {
	// MaxPayloadSize is the largest payload that will be allocated.
	// Zero means no limit.
	MaxPayloadSize datasize.ByteSize
}

// DefaultLimits returns the limits used when none are configured
func DefaultLimits() Limits {
	return Limits{
		MaxPayloadSize: DefaultMaxPayloadSize,
	}
}

// Source is what frames are read from. A bufio.Reader satisfies it.
type Source interface {
	io.Reader
	io.ByteReader
}

// ReadRaw reads the next frame without interpreting its payload.
// It returns io.EOF if the stream ends cleanly before the tag byte, and
// io.ErrUnexpectedEOF if the stream ends halfway through the frame.
func ReadRaw(r Source, limits Limits) (Type, []byte, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	size, err := DecodeVarint(r)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	max := uint64(limits.MaxPayloadSize)
	if max > 0 && size > max {
		return 0, nil, TooLargeError{Size: size, Max: max}
	}
	if size > uint64(math.MaxInt) {
		return 0, nil, TooLargeError{Size: size, Max: uint64(math.MaxInt)}
	}
	payload, err := readPayload(r, int(size))
	if err != nil {
		return 0, nil, err
	}
	return Type(tag), payload, nil
}

// allocChunk is the most memory reserved for a payload ahead of the data
// actually arriving.
const allocChunk = 64 * 1024

// readPayload reads exactly size bytes. Large payloads are read into a
// buffer that grows with the data read, so a declared size larger than the
// remaining stream fails without allocating it.
func readPayload(r io.Reader, size int) ([]byte, error) {
	if size <= allocChunk {
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		return payload, nil
	}
	var buf bytes.Buffer
	buf.Grow(allocChunk)
	n, err := io.CopyN(&buf, r, int64(size))
	if n < int64(size) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseRaw parses the frame at the start of b, which holds the
// decompressed container data after the magic. It returns the number of
// bytes consumed. An empty b returns io.EOF.
func ParseRaw(b []byte, limits Limits) (t Type, payload []byte, n int, err error) {
	if len(b) == 0 {
		return 0, nil, 0, io.EOF
	}
	size, vn, err := ParseVarint(b[1:])
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, 0, err
	}
	max := uint64(limits.MaxPayloadSize)
	if max > 0 && size > max {
		return 0, nil, 0, TooLargeError{Size: size, Max: max}
	}
	start := 1 + vn
	if size > uint64(len(b)-start) {
		return 0, nil, 0, io.ErrUnexpectedEOF
	}
	end := start + int(size)
	return Type(b[0]), b[start:end:end], end, nil
}

// Read reads the next frame and returns it as one of the Frame variants.
// A frame with an unknown tag is consumed and returns an UnknownTagError.
func Read(r Source, limits Limits) (Frame, error) {
	t, payload, err := ReadRaw(r, limits)
	if err != nil {
		return nil, err
	}
	return New(t, payload)
}

// New builds the Frame variant for the given type and payload
func New(t Type, payload []byte) (Frame, error) {
	switch t {
	case TypeFileDescriptor:
		return FileDescriptor{Set: payload}, nil
	case TypeDescriptorName:
		if !utf8.Valid(payload) {
			return nil, ErrInvalidUTF8
		}
		return DescriptorName{Name: string(payload)}, nil
	case TypeMessage:
		return Message{Data: payload}, nil
	case TypeProtobufVersion:
		if !utf8.Valid(payload) {
			return nil, ErrInvalidUTF8
		}
		return ProtobufVersion{Version: string(payload)}, nil
	default:
		return nil, UnknownTagError{Tag: byte(t)}
	}
}

// Write writes a single frame: tag, varint length and the payload
func Write(w io.Writer, f Frame) error {
	return WriteRaw(w, f.Type(), f.Payload())
}

// WriteRaw writes a frame with an arbitrary tag
func WriteRaw(w io.Writer, t Type, payload []byte) error {
	header := make([]byte, 0, 1+MaxVarintLen)
	header = append(header, byte(t))
	header = AppendVarint(header, uint64(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// Size returns the number of bytes Write will produce for f
func Size(f Frame) int {
	n := len(f.Payload())
	return 1 + SizeOfVarint(uint64(n)) + n
}
