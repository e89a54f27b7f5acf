// Package selector picks parts out of decoded message values, using either
// a JSONPath expression (starting with "$") or a JSON pointer (starting
// with "/").
package selector

import (
	"fmt"

	"github.com/go-openapi/jsonpointer"
	"github.com/ohler55/ojg/jp"
	"github.com/pkg/errors"
)

// Selector returns the selected values. Nothing selected is an empty slice.
type Selector interface {
	Select(v any) []any
	String() string
}

// Parse parses a selector. An empty string selects the whole value.
func Parse(s string) (Selector, error) {
	if s == "" {
		return identity{}, nil
	}
	switch s[0] {
	case '$':
		x, err := jp.ParseString(s)
		if err != nil {
			return nil, errors.Wrapf(err, "json path %q", s)
		}
		return path{s: s, x: x}, nil
	case '/':
		p, err := jsonpointer.New(s)
		if err != nil {
			return nil, errors.Wrapf(err, "json pointer %q", s)
		}
		return pointer{s: s, p: p}, nil
	default:
		return nil, fmt.Errorf("selector %q must start with '$' (json path) or '/' (json pointer)", s)
	}
}

// MustParse is like Parse, but panics on error
func MustParse(s string) Selector {
	sel, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sel
}

type identity struct{}

func (identity) Select(v any) []any { return []any{v} }
func (identity) String() string     { return "" }

// path can match any number of values
type path struct {
	s string
	x jp.Expr
}

func (p path) Select(v any) []any {
	return p.x.Get(v)
}

func (p path) String() string { return p.s }

// pointer matches at most one value
type pointer struct {
	s string
	p jsonpointer.Pointer
}

func (p pointer) Select(v any) []any {
	res, _, err := p.p.Get(v)
	if err != nil {
		return nil
	}
	return []any{res}
}

func (p pointer) String() string { return p.s }
