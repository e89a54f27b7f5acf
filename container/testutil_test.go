package container

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/PowerDNS/pbz/frame"
	"github.com/PowerDNS/pbz/registry"
)

// rawFrame is a frame with an arbitrary tag, for building streams by hand
type rawFrame struct {
	t       frame.Type
	payload []byte
}

// gzipBytes compresses plain as a single gzip member
func gzipBytes(t *testing.T, plain []byte) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(plain)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// plainContainer returns the uncompressed bytes: magic followed by frames
func plainContainer(t *testing.T, frames ...rawFrame) []byte {
	var buf bytes.Buffer
	require.NoError(t, frame.WriteMagic(&buf))
	for _, f := range frames {
		require.NoError(t, frame.WriteRaw(&buf, f.t, f.payload))
	}
	return buf.Bytes()
}

func buildContainer(t *testing.T, frames ...rawFrame) []byte {
	return gzipBytes(t, plainContainer(t, frames...))
}

// decompressFrames reads back all frames written by a Writer
func decompressFrames(t *testing.T, data []byte) []rawFrame {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer gz.Close()
	var plain bytes.Buffer
	_, err = plain.ReadFrom(gz)
	require.NoError(t, err)

	r := bytes.NewReader(plain.Bytes())
	require.NoError(t, frame.ReadMagic(r))
	var frames []rawFrame
	for r.Len() > 0 {
		ft, payload, err := frame.ReadRaw(r, frame.Limits{})
		require.NoError(t, err)
		frames = append(frames, rawFrame{t: ft, payload: payload})
	}
	return frames
}

func countFrames(frames []rawFrame, t frame.Type) int {
	n := 0
	for _, f := range frames {
		if f.t == t {
			n++
		}
	}
	return n
}

func testSchemaFrame(t *testing.T) rawFrame {
	return schemaFrame(t, registry.TestFile())
}

func testMessageFrame(t *testing.T, m proto.Message) rawFrame {
	data, err := proto.Marshal(m)
	require.NoError(t, err)
	return rawFrame{t: frame.TypeMessage, payload: data}
}

func nameFrame(name string) rawFrame {
	return rawFrame{t: frame.TypeDescriptorName, payload: []byte(name)}
}

// orphanSchemaFrame carries a file that imports a file nobody sends. Its
// message pbz.test.Orphan only has an int32 field x.
func orphanSchemaFrame(t *testing.T) rawFrame {
	return schemaFrame(t, &descriptorpb.FileDescriptorProto{
		Name:       proto.String("pbz/test/orphan.proto"),
		Package:    proto.String("pbz.test"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"missing/parent.proto"},
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("Orphan"),
			Field: []*descriptorpb.FieldDescriptorProto{{
				Name:     proto.String("x"),
				JsonName: proto.String("x"),
				Number:   proto.Int32(1),
				Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
				Type:     descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
			}},
		}},
	})
}

// conflictingSchemaFrame carries a message with two fields on number 1
func conflictingSchemaFrame(t *testing.T) rawFrame {
	field := func(name string) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(1),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:   descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
		}
	}
	return schemaFrame(t, &descriptorpb.FileDescriptorProto{
		Name:    proto.String("pbz/test/broken.proto"),
		Package: proto.String("pbz.test"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name:  proto.String("Broken"),
			Field: []*descriptorpb.FieldDescriptorProto{field("a"), field("b")},
		}},
	})
}

func schemaFrame(t *testing.T, files ...*descriptorpb.FileDescriptorProto) rawFrame {
	data, err := proto.Marshal(&descriptorpb.FileDescriptorSet{File: files})
	require.NoError(t, err)
	return rawFrame{t: frame.TypeFileDescriptor, payload: data}
}
