package frame

import (
	"io"

	"github.com/CrowdStrike/csproto"
	"github.com/pkg/errors"
)

// MaxVarintLen is the maximum number of bytes a 64 bit varint can take
const MaxVarintLen = 10

// DecodeVarint reads a single base-128 varint from r, one byte at a time.
// It returns io.EOF if the stream ends before the first byte, and
// io.ErrUnexpectedEOF if it ends halfway through the varint.
func DecodeVarint(r io.ByteReader) (uint64, error) {
	var v uint64
	for i := 0; i < MaxVarintLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && i > 0 {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		// The 10th byte only has room for the single top bit
		if i == MaxVarintLen-1 && b&0x7f > 1 {
			return 0, ErrMalformedVarint
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b < 0x80 {
			return v, nil
		}
	}
	return 0, ErrMalformedVarint
}

// ParseVarint decodes a varint at the start of b and returns the value and
// the number of bytes used. Errors match the ones from DecodeVarint.
func ParseVarint(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, io.EOF
	}
	end := -1
	for i := 0; i < len(b) && i < MaxVarintLen; i++ {
		if b[i] < 0x80 {
			end = i
			break
		}
	}
	switch {
	case end < 0 && len(b) < MaxVarintLen:
		return 0, 0, io.ErrUnexpectedEOF
	case end < 0, end == MaxVarintLen-1 && b[end] > 1:
		return 0, 0, ErrMalformedVarint
	}
	v, n, err := csproto.DecodeVarint(b[:end+1])
	if err != nil {
		return 0, 0, errors.Wrap(ErrMalformedVarint, err.Error())
	}
	return v, n, nil
}

// SizeOfVarint returns the number of bytes needed to encode v
func SizeOfVarint(v uint64) int {
	return csproto.SizeOfVarint(v)
}

// AppendVarint appends the minimal varint encoding of v to b
func AppendVarint(b []byte, v uint64) []byte {
	var buf [MaxVarintLen]byte
	n := csproto.EncodeVarint(buf[:], v)
	return append(b, buf[:n]...)
}

// EncodeVarint writes the minimal varint encoding of v to w
func EncodeVarint(w io.Writer, v uint64) error {
	var buf [MaxVarintLen]byte
	n := csproto.EncodeVarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}
