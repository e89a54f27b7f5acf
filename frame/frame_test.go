package frame

import (
	"bufio"
	"bytes"
	"io"
	"runtime"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSource(b []byte) Source {
	return bufio.NewReader(bytes.NewReader(b))
}

func makePayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

func TestFrame_roundtrip(t *testing.T) {
	for _, size := range []int{0, 1, 127, 128, 200, 16384, 100_000} {
		payload := makePayload(size)
		buf := bytes.NewBuffer(nil)
		f := Message{Data: payload}
		require.NoError(t, Write(buf, f))
		assert.Equal(t, Size(f), buf.Len())

		got, err := Read(newSource(buf.Bytes()), DefaultLimits())
		require.NoError(t, err, "size %d", size)
		msg, ok := got.(Message)
		require.True(t, ok, "expected Message, got %T", got)
		assert.Equal(t, payload, msg.Data, "size %d", size)
	}
}

func TestFrame_variants(t *testing.T) {
	frames := []Frame{
		FileDescriptor{Set: []byte{0x0a, 0x00}},
		DescriptorName{Name: "google.protobuf.Timestamp"},
		Message{Data: []byte("hello")},
		ProtobufVersion{Version: "3.21.12"},
	}
	buf := bytes.NewBuffer(nil)
	for _, f := range frames {
		require.NoError(t, Write(buf, f))
	}

	src := newSource(buf.Bytes())
	for _, exp := range frames {
		f, err := Read(src, DefaultLimits())
		require.NoError(t, err)
		assert.Equal(t, exp, f)
		assert.Equal(t, exp.Type(), f.Type())
	}
	_, err := Read(src, DefaultLimits())
	assert.Equal(t, io.EOF, err)
}

func TestFrame_wireLayout(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	require.NoError(t, Write(buf, DescriptorName{Name: "a.B"}))
	assert.Equal(t, []byte{0x02, 0x03, 'a', '.', 'B'}, buf.Bytes())
}

func TestRead_unknownTag(t *testing.T) {
	data := []byte{0x05, 0x01, 0xff, 0x03, 0x00}
	src := newSource(data)
	_, err := Read(src, DefaultLimits())
	assert.ErrorIs(t, err, ErrUnknownFrameTag)
	var ute UnknownTagError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, byte(5), ute.Tag)

	// The bad frame was fully consumed
	f, err := Read(src, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, Message{Data: []byte{}}, f)
}

func TestRead_invalidUTF8(t *testing.T) {
	_, err := Read(newSource([]byte{0x02, 0x02, 0xc3, 0x28}), DefaultLimits())
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestReadRaw_truncated(t *testing.T) {
	full := bytes.NewBuffer(nil)
	require.NoError(t, WriteRaw(full, TypeMessage, makePayload(300)))
	data := full.Bytes()

	// Clean end before the tag
	_, _, err := ReadRaw(newSource(nil), DefaultLimits())
	assert.Equal(t, io.EOF, err)

	// Every other cut is a truncation
	for _, cut := range []int{1, 2, 3, 100, len(data) - 1} {
		_, _, err := ReadRaw(newSource(data[:cut]), DefaultLimits())
		assert.ErrorIs(t, err, ErrUnexpectedEOF, "cut at %d", cut)
	}
}

func TestReadRaw_limits(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	require.NoError(t, WriteRaw(buf, TypeMessage, makePayload(2048)))

	_, _, err := ReadRaw(newSource(buf.Bytes()), Limits{MaxPayloadSize: datasize.KB})
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, p, err := ReadRaw(newSource(buf.Bytes()), Limits{})
	require.NoError(t, err)
	assert.Len(t, p, 2048)

	// A huge declared length must not be allocated
	huge := []byte{byte(TypeMessage), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}
	_, _, err = ReadRaw(newSource(huge), DefaultLimits())
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadRaw_declaredSizeNotAllocated(t *testing.T) {
	// Message frame declaring 900 MB, followed by nothing
	data := []byte{byte(TypeMessage), 0x80, 0x80, 0x80, 0xc2, 0x03}
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, _, err := ReadRaw(newSource(data), DefaultLimits())
	runtime.ReadMemStats(&after)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
	allocated := datasize.ByteSize(after.TotalAlloc - before.TotalAlloc)
	assert.Less(t, allocated, 16*datasize.MB, "allocated %s", allocated.HR())
}

func TestReadRaw_largePayload(t *testing.T) {
	payload := makePayload(3*allocChunk + 17)
	buf := bytes.NewBuffer(nil)
	require.NoError(t, WriteRaw(buf, TypeMessage, payload))
	data := buf.Bytes()

	typ, p, err := ReadRaw(newSource(data), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, TypeMessage, typ)
	assert.Equal(t, payload, p)

	_, _, err = ReadRaw(newSource(data[:len(data)-1]), DefaultLimits())
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestParseRaw(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	require.NoError(t, Write(buf, DescriptorName{Name: "a.B"}))
	require.NoError(t, Write(buf, Message{Data: makePayload(200)}))
	require.NoError(t, Write(buf, Message{}))
	data := buf.Bytes()

	var types []Type
	var sizes []int
	for off := 0; ; {
		ft, payload, n, err := ParseRaw(data[off:], DefaultLimits())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, ft)
		sizes = append(sizes, len(payload))
		off += n
	}
	assert.Equal(t, []Type{TypeDescriptorName, TypeMessage, TypeMessage}, types)
	assert.Equal(t, []int{3, 200, 0}, sizes)

	for _, cut := range []int{1, 2, 4} {
		_, _, _, err := ParseRaw(data[:cut], DefaultLimits())
		assert.ErrorIs(t, err, ErrUnexpectedEOF, "cut at %d", cut)
	}
	_, _, _, err := ParseRaw(data[5:], Limits{MaxPayloadSize: 100})
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestMagic(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	require.NoError(t, WriteMagic(buf))
	assert.Equal(t, []byte{0x41, 0x42}, buf.Bytes())
	assert.NoError(t, ReadMagic(buf))

	assert.ErrorIs(t, ReadMagic(bytes.NewReader([]byte{0x42, 0x41})), ErrInvalidMagic)
	assert.ErrorIs(t, ReadMagic(bytes.NewReader([]byte{0x41})), ErrInvalidMagic)
	assert.ErrorIs(t, ReadMagic(bytes.NewReader(nil)), ErrInvalidMagic)
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "message", TypeMessage.String())
	assert.Equal(t, "unknown(9)", Type(9).String())
	assert.True(t, TypeProtobufVersion.Known())
	assert.False(t, Type(0).Known())
}
