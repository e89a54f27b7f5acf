package registry

import (
	"fmt"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ValueDecoder decodes a raw message payload of a named type into a generic
// structured value: map[string]any, []any, string, float64, bool or nil.
type ValueDecoder interface {
	DecodeValue(typeName string, data []byte) (any, error)
}

var _ ValueDecoder = (*Registry)(nil)

// DecodeValue implements ValueDecoder using the registered schemas
func (r *Registry) DecodeValue(typeName string, data []byte) (any, error) {
	md, ok := r.FindMessage(typeName)
	if !ok {
		return nil, UnresolvedTypeError{Name: typeName}
	}
	msg := dynamicpb.NewMessage(md)
	opt := proto.UnmarshalOptions{Resolver: r.types}
	if err := opt.Unmarshal(data, msg); err != nil {
		return nil, DecodeError{Name: typeName, Reason: err.Error()}
	}
	if fd, ref := unresolvedField(msg); fd != nil {
		return nil, DecodeError{
			Name:   typeName,
			Reason: fmt.Sprintf("field %s has unresolved type %s", fd.FullName(), ref),
		}
	}
	v, err := r.ToValue(msg)
	if err != nil {
		return nil, DecodeError{Name: typeName, Reason: err.Error()}
	}
	return v, nil
}

// unresolvedField returns the first populated field, at any depth, whose
// message or enum type comes from a file that was never registered,
// together with the name of that type.
func unresolvedField(m protoreflect.Message) (bad protoreflect.FieldDescriptor, ref protoreflect.FullName) {
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		vd := fd
		if fd.IsMap() {
			vd = fd.MapValue()
		}
		if name, ok := placeholderType(vd); ok {
			bad, ref = fd, name
			return false
		}
		if vd.Message() == nil {
			return true
		}
		switch {
		case fd.IsMap():
			v.Map().Range(func(_ protoreflect.MapKey, mv protoreflect.Value) bool {
				bad, ref = unresolvedField(mv.Message())
				return bad == nil
			})
		case fd.IsList():
			l := v.List()
			for i := 0; i < l.Len() && bad == nil; i++ {
				bad, ref = unresolvedField(l.Get(i).Message())
			}
		default:
			bad, ref = unresolvedField(v.Message())
		}
		return bad == nil
	})
	return bad, ref
}

func placeholderType(fd protoreflect.FieldDescriptor) (protoreflect.FullName, bool) {
	if md := fd.Message(); md != nil && md.IsPlaceholder() {
		return md.FullName(), true
	}
	if ed := fd.Enum(); ed != nil && ed.IsPlaceholder() {
		return ed.FullName(), true
	}
	return "", false
}

// ToValue converts any message into the same generic structure DecodeValue
// returns. Field names are the proto field names and unset fields are
// included.
func (r *Registry) ToValue(m proto.Message) (any, error) {
	opt := protojson.MarshalOptions{
		UseProtoNames:   true,
		EmitUnpopulated: true,
		Resolver:        r.types,
	}
	data, err := opt.Marshal(m)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// FromJSON parses protojson data into a new message of the named type
func (r *Registry) FromJSON(typeName string, data []byte) (proto.Message, error) {
	msg, err := r.NewMessage(typeName)
	if err != nil {
		return nil, err
	}
	opt := protojson.UnmarshalOptions{Resolver: r.types}
	if err := opt.Unmarshal(data, msg); err != nil {
		return nil, DecodeError{Name: typeName, Reason: err.Error()}
	}
	return msg, nil
}
