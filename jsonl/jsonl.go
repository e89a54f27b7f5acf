// Package jsonl converts between containers and JSON lines.
package jsonl

import (
	"bufio"
	"context"
	"io"

	"github.com/c2h5oh/datasize"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/PowerDNS/pbz/container"
	"github.com/PowerDNS/pbz/registry"
	"github.com/PowerDNS/pbz/selector"
)

// MaxLineSize is the longest input line Pack accepts
const MaxLineSize = 64 * datasize.MB

// Options for Dump
type Options struct {
	Selector selector.Selector // nil selects the whole value
	Skip     int               // messages to skip first
	Take     int               // stop after this many messages, 0 means all
	Pretty   bool
	Logger   logrus.FieldLogger
}

// Result counts what Dump did
type Result struct {
	Messages     int // read from the container, including skipped ones
	Written      int // lines written
	DecodeErrors int
}

// Dump writes the messages from r as JSON lines. Values the selector does
// not match and null values are not written. Messages that cannot be decoded
// are logged and skipped, the stream continues after them.
func Dump(ctx context.Context, r *container.Reader, w io.Writer, opt Options) (res Result, err error) {
	sel := opt.Selector
	if sel == nil {
		sel, _ = selector.Parse("")
	}
	logger := opt.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	skip, take := opt.Skip, opt.Take

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		v, err := r.NextValue()
		if err == io.EOF {
			return res, nil
		}
		if err != nil && r.State() == container.StateClosed {
			return res, err
		}
		res.Messages++
		if skip > 0 {
			skip--
			continue
		}
		if err != nil {
			res.DecodeErrors++
			logger.WithError(err).WithFields(logrus.Fields{
				"message": res.Messages,
				"type":    r.TypeName(),
			}).Warn("Skipping message that cannot be decoded")
		} else {
			for _, part := range sel.Select(v) {
				if part == nil {
					continue
				}
				if err := writeLine(w, part, opt.Pretty); err != nil {
					return res, err
				}
				res.Written++
			}
		}
		if take > 0 {
			take--
			if take == 0 {
				return res, nil
			}
		}
	}
}

func writeLine(w io.Writer, v any, pretty bool) error {
	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// Pack reads JSON objects, one per line, and writes them to w as messages
// of the given type. The type must already be registered with w. Empty
// lines are ignored. It returns the number of messages written.
func Pack(ctx context.Context, in io.Reader, w *container.Writer, typeName string) (int, error) {
	reg := w.Registry()
	if !reg.HasMessage(typeName) {
		return 0, registry.UnresolvedTypeError{Name: typeName}
	}
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), int(MaxLineSize))
	n := 0
	line := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		line++
		data := sc.Bytes()
		if len(data) == 0 {
			continue
		}
		m, err := reg.FromJSON(typeName, data)
		if err != nil {
			return n, errors.Wrapf(err, "line %d", line)
		}
		if err := w.Write(m); err != nil {
			return n, err
		}
		n++
	}
	return n, sc.Err()
}
