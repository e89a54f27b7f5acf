package commands

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/PowerDNS/pbz/container"
	"github.com/PowerDNS/pbz/storage"
)

// openContainer opens a local container, stdin for "-", or a container from
// the configured storage when remote is set.
func openContainer(ctx context.Context, name string, remote bool) (*container.Reader, error) {
	opts := append(conf.ReaderOptions(),
		container.WithLogger(logrus.WithField("container", name)))
	if remote {
		st, err := storage.Open(ctx, conf.Storage)
		if err != nil {
			return nil, err
		}
		return storage.Load(ctx, st, name, opts...)
	}
	if name == "-" {
		return container.NewReader(os.Stdin, opts...)
	}
	return container.Open(name, opts...)
}

// storageContext returns a context bounded by the storage timeout
func storageContext() (context.Context, context.CancelFunc) {
	if conf.Storage.Timeout > 0 {
		return context.WithTimeout(rootCtx, conf.Storage.Timeout)
	}
	return context.WithCancel(rootCtx)
}
