// Package storage stores and loads containers through a simpleblob backend.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PowerDNS/simpleblob"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/PowerDNS/pbz/config"
	"github.com/PowerDNS/pbz/container"

	// Register storage backends
	_ "github.com/PowerDNS/simpleblob/backends/fs"
	_ "github.com/PowerDNS/simpleblob/backends/memory"
	_ "github.com/PowerDNS/simpleblob/backends/s3"
)

// Extension is the file extension used for stored containers
const Extension = ".pbz"

// Open returns the configured backend
func Open(ctx context.Context, sc config.Storage) (simpleblob.Interface, error) {
	if sc.Type == "" {
		return nil, fmt.Errorf("no storage.type configured")
	}
	st, err := simpleblob.GetBackend(ctx, sc.Type, sc.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "storage type %q", sc.Type)
	}
	return st, nil
}

// CheckName checks if a name is acceptable for a stored container
func CheckName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name")
	case strings.Contains(name, "/"):
		return fmt.Errorf("name %q contains a slash", name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("name %q starts with a dot", name)
	case !strings.HasSuffix(name, Extension):
		return fmt.Errorf("name %q does not end in %s", name, Extension)
	}
	return nil
}

// List returns the stored containers with the given name prefix. Blobs
// without the container extension are skipped.
func List(ctx context.Context, st simpleblob.Interface, prefix string) (simpleblob.BlobList, error) {
	list, err := st.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return lo.Filter(list, func(b simpleblob.Blob, _ int) bool {
		return strings.HasSuffix(b.Name, Extension)
	}), nil
}

// Load returns a Reader for a stored container. The whole blob is loaded
// into memory, simpleblob has no streaming interface.
func Load(ctx context.Context, st simpleblob.Interface, name string, opts ...container.Option) (*container.Reader, error) {
	data, err := st.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	r, err := container.NewReader(bytes.NewReader(data), opts...)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return r, nil
}

// Verify reads every frame of a container and returns its stats. Only
// framing and schema errors fail, messages are not decoded.
func Verify(data []byte, opts ...container.Option) (container.Stats, error) {
	r, err := container.NewReader(bytes.NewReader(data), opts...)
	if err != nil {
		return container.Stats{}, err
	}
	defer r.Close()
	for {
		if _, _, err := r.NextRaw(); err != nil {
			if err == io.EOF {
				return r.Stats(), nil
			}
			return r.Stats(), err
		}
	}
}

// Store verifies a container and stores it under name
func Store(ctx context.Context, st simpleblob.Interface, name string, data []byte, opts ...container.Option) error {
	if err := CheckName(name); err != nil {
		return err
	}
	if _, err := Verify(data, opts...); err != nil {
		return errors.Wrapf(err, "refusing to store invalid container %q", name)
	}
	return st.Store(ctx, name, data)
}
