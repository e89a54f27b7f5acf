package registry

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnresolvedType is matched by UnresolvedTypeError
	ErrUnresolvedType = errors.New("registry: unresolved type")
	// ErrDecodeFailure is matched by DecodeError
	ErrDecodeFailure = errors.New("registry: decode failure")
)

// UnresolvedTypeError is returned when a message type name is not known to
// the registry.
type UnresolvedTypeError struct {
	Name string
}

func (e UnresolvedTypeError) Error() string {
	if e.Name == "" {
		return "registry: no message type set"
	}
	return fmt.Sprintf("registry: unresolved type %q", e.Name)
}

func (e UnresolvedTypeError) Is(target error) bool {
	return target == ErrUnresolvedType
}

// DecodeError is returned for any failure to reflectively decode a message
// payload. All failures are reported as the same kind; Reason is only meant
// for humans.
type DecodeError struct {
	Name   string
	Reason string
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("registry: cannot decode %q: %s", e.Name, e.Reason)
}

func (e DecodeError) Is(target error) bool {
	return target == ErrDecodeFailure
}
