package frame

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidMagic is returned when a stream does not start with Magic
	ErrInvalidMagic = errors.New("frame: invalid magic bytes")
	// ErrMalformedVarint is returned for varints longer than 10 bytes or
	// varints that overflow 64 bits
	ErrMalformedVarint = errors.New("frame: malformed varint")
	// ErrUnknownFrameTag is matched by UnknownTagError
	ErrUnknownFrameTag = errors.New("frame: unknown frame tag")
	// ErrFrameTooLarge is matched by TooLargeError
	ErrFrameTooLarge = errors.New("frame: frame too large")
	// ErrInvalidUTF8 is returned when a text frame payload is not valid UTF-8
	ErrInvalidUTF8 = errors.New("frame: text payload is not valid UTF-8")
)

// ErrUnexpectedEOF is returned when the stream ends halfway through a frame.
// A stream that ends cleanly between frames returns io.EOF instead.
var ErrUnexpectedEOF = io.ErrUnexpectedEOF

// UnknownTagError is returned for a frame with a tag outside the known set.
type UnknownTagError struct {
	Tag byte
}

func (e UnknownTagError) Error() string {
	return fmt.Sprintf("frame: unknown frame tag %d", e.Tag)
}

func (e UnknownTagError) Is(target error) bool {
	return target == ErrUnknownFrameTag
}

// TooLargeError is returned when a frame declares a payload length above the
// configured limit.
type TooLargeError struct {
	Size uint64
	Max  uint64
}

func (e TooLargeError) Error() string {
	return fmt.Sprintf("frame: payload size %d exceeds limit of %d bytes", e.Size, e.Max)
}

func (e TooLargeError) Is(target error) bool {
	return target == ErrFrameTooLarge
}
