package registry

import (
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Names of the types in TestFile
const (
	TestPersonType = "pbz.test.Person"
	TestEventType  = "pbz.test.Event"
)

// TestFile returns a small schema for use in tests, so that no generated
// code is needed. It imports google/protobuf/timestamp.proto.
func TestFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("pbz/test/person.proto"),
		Package:    proto.String("pbz.test"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/protobuf/timestamp.proto"},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Person"),
				Field: []*descriptorpb.FieldDescriptorProto{
					testField("name", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
					testField("id", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32, ""),
					testField("email", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
					testRepeated(testField("phones", 4, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE,
						".pbz.test.Person.PhoneNumber")),
					testField("last_updated", 5, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE,
						".google.protobuf.Timestamp"),
				},
				NestedType: []*descriptorpb.DescriptorProto{
					{
						Name: proto.String("PhoneNumber"),
						Field: []*descriptorpb.FieldDescriptorProto{
							testField("number", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
							testField("type", 2, descriptorpb.FieldDescriptorProto_TYPE_ENUM,
								".pbz.test.Person.PhoneType"),
						},
					},
				},
				EnumType: []*descriptorpb.EnumDescriptorProto{
					{
						Name: proto.String("PhoneType"),
						Value: []*descriptorpb.EnumValueDescriptorProto{
							{Name: proto.String("MOBILE"), Number: proto.Int32(0)},
							{Name: proto.String("HOME"), Number: proto.Int32(1)},
							{Name: proto.String("WORK"), Number: proto.Int32(2)},
						},
					},
				},
			},
			{
				Name: proto.String("Event"),
				Field: []*descriptorpb.FieldDescriptorProto{
					testField("kind", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
					testField("payload", 2, descriptorpb.FieldDescriptorProto_TYPE_BYTES, ""),
				},
			},
		},
	}
}

func testField(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(num),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     typ.Enum(),
		JsonName: proto.String(protodescJSONName(name)),
	}
	if typeName != "" {
		f.TypeName = proto.String(typeName)
	}
	return f
}

func testRepeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

// protodescJSONName mirrors the lowerCamelCase json_name protoc fills in
func protodescJSONName(name string) string {
	out := make([]byte, 0, len(name))
	upper := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}

// TestFileDescriptor returns TestFile resolved against the linked-in
// well-known types.
func TestFileDescriptor() protoreflect.FileDescriptor {
	testFileOnce.Do(func() {
		fd, err := protodesc.NewFile(TestFile(), protoregistry.GlobalFiles)
		if err != nil {
			panic(err) // static schema
		}
		testFileDescriptor = fd
	})
	return testFileDescriptor
}

var (
	testFileOnce       sync.Once
	testFileDescriptor protoreflect.FileDescriptor
)

// NewTestPerson creates a dynamic pbz.test.Person message
func NewTestPerson(name string, id int32, phones ...string) *dynamicpb.Message {
	md := TestFileDescriptor().Messages().ByName("Person")
	m := dynamicpb.NewMessage(md)
	fields := md.Fields()
	m.Set(fields.ByName("name"), protoreflect.ValueOfString(name))
	m.Set(fields.ByName("id"), protoreflect.ValueOfInt32(id))
	if len(phones) > 0 {
		list := m.Mutable(fields.ByName("phones")).List()
		pmd := md.Messages().ByName("PhoneNumber")
		for i, number := range phones {
			pn := dynamicpb.NewMessage(pmd)
			pn.Set(pmd.Fields().ByName("number"), protoreflect.ValueOfString(number))
			pn.Set(pmd.Fields().ByName("type"), protoreflect.ValueOfEnum(protoreflect.EnumNumber(i%3)))
			list.Append(protoreflect.ValueOfMessage(pn))
		}
	}
	ts := timestamppb.New(time.Unix(1678946171, 1002003).UTC())
	m.Set(fields.ByName("last_updated"), protoreflect.ValueOfMessage(ts.ProtoReflect()))
	return m
}

// NewTestEvent creates a dynamic pbz.test.Event message
func NewTestEvent(kind string, payload []byte) *dynamicpb.Message {
	md := TestFileDescriptor().Messages().ByName("Event")
	m := dynamicpb.NewMessage(md)
	m.Set(md.Fields().ByName("kind"), protoreflect.ValueOfString(kind))
	m.Set(md.Fields().ByName("payload"), protoreflect.ValueOfBytes(payload))
	return m
}
