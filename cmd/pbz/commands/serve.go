package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/wojas/go-healthz"
	"golang.org/x/sync/errgroup"

	"github.com/PowerDNS/pbz/status"
	"github.com/PowerDNS/pbz/status/healthtracker"
	"github.com/PowerDNS/pbz/storage"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Duration("poll-interval", time.Minute, "Interval between storage listings")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored containers over HTTP",
	Long: `Serve stored containers over HTTP.

Containers in the configured storage are listed under /containers/ and
streamed as JSON lines from /containers/NAME. The server also exposes
Prometheus metrics and health checks.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, err := cmd.Flags().GetDuration("poll-interval")
		if err != nil {
			return err
		}
		if interval <= 0 {
			return fmt.Errorf("--poll-interval must be positive")
		}
		if conf.HTTP.Address == "" {
			return fmt.Errorf("http.address must be configured")
		}

		ctx, cancel := context.WithCancel(rootCtx)
		defer cancel()

		st, err := storage.Open(ctx, conf.Storage)
		if err != nil {
			return err
		}
		logrus.WithField("storage_type", conf.Storage.Type).Info("Storage backend initialised")
		status.SetStorage(st)

		ht := healthtracker.New(conf.Health, "storage", "list containers")
		ht.Register()

		healthz.AddBuildInfo()
		if hostname, err := os.Hostname(); err == nil {
			healthz.SetMeta("hostname", hostname)
		}
		healthz.SetMeta("version", version)

		timeout := conf.Storage.Timeout
		if timeout <= 0 {
			timeout = interval
		}

		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			err := status.PollStorage(ctx, interval, timeout, ht)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})

		status.StartHTTPServer(conf)
		logrus.Info("Serving containers")
		return eg.Wait()
	},
}
