package container

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/PowerDNS/pbz/frame"
	"github.com/PowerDNS/pbz/registry"
)

func TestNewReader_invalidMagic(t *testing.T) {
	for name, plain := range map[string][]byte{
		"wrong":  {0x42, 0x41, 0x01, 0x00},
		"short":  {0x41},
		"empty":  {},
		"frames": {0x01, 0x00},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(gzipBytes(t, plain)))
			assert.ErrorIs(t, err, frame.ErrInvalidMagic)
			assert.Equal(t, KindInvalidMagic, ErrorKind(err))
		})
	}
}

func TestNewReader_notGzip(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0x41, 0x42, 0x03, 0x00}))
	assert.Error(t, err)

	_, err = NewReader(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReader_emptyContainer(t *testing.T) {
	r, err := NewReader(bytes.NewReader(buildContainer(t)))
	require.NoError(t, err)
	assert.Equal(t, StateStreaming, r.State())

	_, err = r.NextValue()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, StateClosed, r.State())
	assert.Equal(t, io.EOF, r.Err())

	// Stays at end of stream
	_, _, err = r.NextRaw()
	assert.Equal(t, io.EOF, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestReader_payloadSizes(t *testing.T) {
	for _, size := range []int{0, 1, 127, 128, 300, 70000} {
		payload := bytes.Repeat([]byte{0xab}, size)
		data := buildContainer(t,
			nameFrame("pbz.test.Event"),
			rawFrame{t: frame.TypeMessage, payload: payload},
		)
		r, err := NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		name, got, err := r.NextRaw()
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, ".pbz.test.Event", name)
		assert.Equal(t, payload, got, "size %d", size)
		_, _, err = r.NextRaw()
		assert.Equal(t, io.EOF, err)
	}
}

func TestReader_NextValue(t *testing.T) {
	person := registry.NewTestPerson("Alice", 42, "+31 20 1234", "+1 555 0100")
	data := buildContainer(t,
		testSchemaFrame(t),
		nameFrame("pbz.test.Person"),
		testMessageFrame(t, person),
	)
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	v, err := r.NextValue()
	require.NoError(t, err)
	assert.Equal(t, ".pbz.test.Person", r.TypeName())

	reg := registry.New()
	require.NoError(t, reg.RegisterFile(registry.TestFile()))
	want, err := reg.ToValue(person)
	require.NoError(t, err)
	assert.Equal(t, want, v)

	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", m["name"])
	assert.Equal(t, "2023-03-16T05:56:11.001002003Z", m["last_updated"])

	stats := r.Stats()
	assert.Equal(t, int64(3), stats.Frames)
	assert.Equal(t, int64(1), stats.Messages)
	assert.Equal(t, int64(1), stats.Schemas)
	assert.Equal(t, int64(1), stats.TypeSwitches)
}

func TestReader_NextInto(t *testing.T) {
	person := registry.NewTestPerson("Bob", 7)
	data := buildContainer(t,
		testSchemaFrame(t),
		nameFrame("pbz.test.Person"),
		testMessageFrame(t, person),
	)
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	got := dynamicpb.NewMessage(registry.TestFileDescriptor().Messages().ByName("Person"))
	require.NoError(t, r.NextInto(got))
	assert.True(t, proto.Equal(person, got))
	assert.Equal(t, io.EOF, r.NextInto(got))
}

func TestReader_unresolvedType(t *testing.T) {
	person := registry.NewTestPerson("Carol", 3)
	data := buildContainer(t,
		nameFrame("pbz.test.Person"),
		testMessageFrame(t, person),
		testMessageFrame(t, person),
	)
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.NextValue()
	assert.ErrorIs(t, err, registry.ErrUnresolvedType)
	assert.Equal(t, KindUnresolvedType, ErrorKind(err))
	assert.Equal(t, StateStreaming, r.State())

	// Static decoding does not need the schema
	got := dynamicpb.NewMessage(registry.TestFileDescriptor().Messages().ByName("Person"))
	require.NoError(t, r.NextInto(got))
	assert.True(t, proto.Equal(person, got))
}

func TestReader_messageBeforeName(t *testing.T) {
	data := buildContainer(t,
		testSchemaFrame(t),
		rawFrame{t: frame.TypeMessage, payload: nil},
	)
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.NextValue()
	assert.ErrorIs(t, err, registry.ErrUnresolvedType)
}

func TestReader_decodeFailureKeepsStreaming(t *testing.T) {
	event := registry.NewTestEvent("ping", []byte{1, 2, 3})
	data := buildContainer(t,
		testSchemaFrame(t),
		nameFrame("pbz.test.Event"),
		rawFrame{t: frame.TypeMessage, payload: []byte{0x0a, 0x10, 'x'}}, // truncated string field
		testMessageFrame(t, event),
	)
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.NextValue()
	assert.ErrorIs(t, err, registry.ErrDecodeFailure)
	assert.Equal(t, StateStreaming, r.State())

	v, err := r.NextValue()
	require.NoError(t, err)
	assert.Equal(t, "ping", v.(map[string]any)["kind"])
	assert.Equal(t, "AQID", v.(map[string]any)["payload"])
}

func TestReader_unresolvedImport(t *testing.T) {
	person := registry.NewTestPerson("Alice", 1)
	data := buildContainer(t,
		orphanSchemaFrame(t),
		nameFrame("pbz.test.Orphan"),
		rawFrame{t: frame.TypeMessage, payload: []byte{0x08, 0x05}},
		testSchemaFrame(t),
		nameFrame(registry.TestPersonType),
		testMessageFrame(t, person),
	)
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	v, err := r.NextValue()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": float64(5)}, v)
	assert.Equal(t, StateStreaming, r.State())

	v, err = r.NextValue()
	require.NoError(t, err)
	assert.Equal(t, "Alice", v.(map[string]any)["name"])

	_, err = r.NextValue()
	assert.Equal(t, io.EOF, err)
}

func TestReader_typeSwitch(t *testing.T) {
	data := buildContainer(t,
		testSchemaFrame(t),
		nameFrame("pbz.test.Event"),
		testMessageFrame(t, registry.NewTestEvent("a", nil)),
		nameFrame("pbz.test.Person"),
		testMessageFrame(t, registry.NewTestPerson("Dave", 1)),
		testMessageFrame(t, registry.NewTestPerson("Erin", 2)),
	)
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for {
		v, err := r.NextValue()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.NotNil(t, v)
		names = append(names, r.TypeName())
	}
	assert.Equal(t, []string{".pbz.test.Event", ".pbz.test.Person", ".pbz.test.Person"}, names)
}

func TestReader_protobufVersion(t *testing.T) {
	data := buildContainer(t,
		rawFrame{t: frame.TypeProtobufVersion, payload: []byte("3.21.12")},
		nameFrame("pbz.test.Event"),
		rawFrame{t: frame.TypeMessage},
	)
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	_, _, err = r.NextRaw()
	require.NoError(t, err)
	assert.Equal(t, "3.21.12", r.ProtobufVersion())
	assert.Equal(t, int64(1), r.Stats().Versions)
}

func TestReader_terminalErrors(t *testing.T) {
	good := nameFrame("pbz.test.Event")
	tests := []struct {
		name  string
		plain []byte
		kind  string
	}{
		{
			name:  "unknown tag",
			plain: plainContainer(t, good, rawFrame{t: 7, payload: []byte("xx")}),
			kind:  KindUnknownFrameTag,
		},
		{
			name:  "truncated payload",
			plain: append(plainContainer(t, good), byte(frame.TypeMessage), 0x05, 'a'),
			kind:  KindUnexpectedEOF,
		},
		{
			name:  "truncated varint",
			plain: append(plainContainer(t, good), byte(frame.TypeMessage), 0x80),
			kind:  KindUnexpectedEOF,
		},
		{
			name: "malformed varint",
			plain: append(plainContainer(t, good), byte(frame.TypeMessage),
				0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01),
			kind: KindMalformedVarint,
		},
		{
			name:  "invalid schema",
			plain: plainContainer(t, conflictingSchemaFrame(t)),
			kind:  KindOther,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(bytes.NewReader(gzipBytes(t, tt.plain)))
			require.NoError(t, err)
			defer r.Close()

			_, err = r.NextValue()
			require.Error(t, err)
			assert.Equal(t, tt.kind, ErrorKind(err))
			assert.Equal(t, StateClosed, r.State())

			// Every later call reports the same error
			_, err2 := r.NextValue()
			assert.Equal(t, err, err2)
			assert.Equal(t, err, r.Err())
		})
	}
}

func TestReader_limits(t *testing.T) {
	data := buildContainer(t,
		nameFrame("pbz.test.Event"),
		rawFrame{t: frame.TypeMessage, payload: make([]byte, 2000)},
	)
	r, err := NewReader(bytes.NewReader(data), WithLimits(frame.Limits{MaxPayloadSize: datasize.KB}))
	require.NoError(t, err)
	defer r.Close()

	_, _, err = r.NextRaw()
	assert.ErrorIs(t, err, frame.ErrFrameTooLarge)
	assert.Equal(t, KindFrameTooLarge, ErrorKind(err))
}

func TestReader_closed(t *testing.T) {
	r, err := NewReader(bytes.NewReader(buildContainer(t, nameFrame("x.Y"))))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, StateClosed, r.State())

	_, err = r.NextValue()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, KindClosed, ErrorKind(err))
}

type staticDecoder struct{}

func (staticDecoder) DecodeValue(typeName string, data []byte) (any, error) {
	return typeName + ":" + string(data), nil
}

func TestReader_WithValueDecoder(t *testing.T) {
	data := buildContainer(t,
		nameFrame("pbz.test.Event"),
		rawFrame{t: frame.TypeMessage, payload: []byte("hi")},
	)
	r, err := NewReader(bytes.NewReader(data), WithValueDecoder(staticDecoder{}))
	require.NoError(t, err)
	defer r.Close()

	v, err := r.NextValue()
	require.NoError(t, err)
	assert.Equal(t, ".pbz.test.Event:hi", v)
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pbz")
	require.NoError(t, os.WriteFile(path, buildContainer(t), 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	_, err = r.NextValue()
	assert.Equal(t, io.EOF, err)
	require.NoError(t, r.Close())

	_, err = Open(filepath.Join(t.TempDir(), "missing.pbz"))
	assert.Error(t, err)
}
