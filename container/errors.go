package container

import (
	"io"

	"github.com/pkg/errors"

	"github.com/PowerDNS/pbz/frame"
	"github.com/PowerDNS/pbz/registry"
)

// ErrClosed is returned when using a Reader or Writer after Close
var ErrClosed = errors.New("container: closed")

// Error kinds as reported by ErrorKind
const (
	KindEndOfStream     = "end_of_stream"
	KindInvalidMagic    = "invalid_magic"
	KindMalformedVarint = "malformed_varint"
	KindUnexpectedEOF   = "unexpected_eof"
	KindUnknownFrameTag = "unknown_frame_tag"
	KindFrameTooLarge   = "frame_too_large"
	KindUnresolvedType  = "unresolved_type"
	KindDecodeFailure   = "decode_failure"
	KindClosed          = "closed"
	KindOther           = "other"
)

// ErrorKind classifies an error returned by this package
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, io.EOF):
		return KindEndOfStream
	case errors.Is(err, frame.ErrInvalidMagic):
		return KindInvalidMagic
	case errors.Is(err, frame.ErrMalformedVarint):
		return KindMalformedVarint
	case errors.Is(err, io.ErrUnexpectedEOF):
		return KindUnexpectedEOF
	case errors.Is(err, frame.ErrUnknownFrameTag):
		return KindUnknownFrameTag
	case errors.Is(err, frame.ErrFrameTooLarge):
		return KindFrameTooLarge
	case errors.Is(err, registry.ErrUnresolvedType):
		return KindUnresolvedType
	case errors.Is(err, registry.ErrDecodeFailure):
		return KindDecodeFailure
	case errors.Is(err, ErrClosed):
		return KindClosed
	default:
		return KindOther
	}
}
