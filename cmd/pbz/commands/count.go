package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/PowerDNS/pbz/container"
	"github.com/PowerDNS/pbz/utils"
	"github.com/PowerDNS/pbz/utils/climit"
)

func init() {
	rootCmd.AddCommand(countCmd)
	countCmd.Flags().BoolP("decode", "d", false,
		"Also decode every message into a structured value, to measure decoding speed")
	countCmd.Flags().IntP("parallel", "j", 4, "Number of containers to read at the same time")
	countCmd.Flags().BoolP("remote", "r", false, "Read the containers from the configured storage")
}

// countResult is the outcome for a single container
type countResult struct {
	stats        container.Stats
	decodeErrors int64
}

// countContainer reads all messages from one container
func countContainer(ctx context.Context, name string, remote, decode bool, progress *atomic.Int64) (res countResult, err error) {
	r, err := openContainer(ctx, name, remote)
	if err != nil {
		return res, err
	}
	defer r.Close()
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if decode {
			_, err = r.NextValue()
		} else {
			_, _, err = r.NextRaw()
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if r.State() == container.StateClosed {
				return res, err
			}
			res.decodeErrors++
		}
		progress.Inc()
	}
	res.stats = r.Stats()
	return res, nil
}

var countCmd = &cobra.Command{
	Use:   "count PATH...",
	Short: "Count the messages in one or more containers",
	Long: `Count the messages in one or more containers and report the throughput.

Containers are read concurrently, each with its own reader.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		decode, err := cmd.Flags().GetBool("decode")
		if err != nil {
			return err
		}
		parallel, err := cmd.Flags().GetInt("parallel")
		if err != nil {
			return err
		}
		remote, err := cmd.Flags().GetBool("remote")
		if err != nil {
			return err
		}

		limit := climit.New("count", parallel, logrus.StandardLogger())
		var progress, total, decodeErrors atomic.Int64
		var payload atomic.Uint64

		// Periodic progress for long runs
		pctx, cancel := context.WithCancel(rootCtx)
		defer cancel()
		go func() {
			for utils.SleepContext(pctx, 5*time.Second) == nil {
				logrus.WithField("messages", progress.Load()).Info("Progress")
			}
		}()

		t0 := time.Now()
		eg, ctx := errgroup.WithContext(pctx)
		for _, name := range args {
			eg.Go(func() error {
				token, err := limit.Acquire(ctx)
				if err != nil {
					return err
				}
				defer token.Release()

				t1 := time.Now()
				res, err := countContainer(ctx, name, remote, decode, &progress)
				if err != nil {
					return errors.Wrap(err, name)
				}
				dt := utils.TimeDiff(time.Now(), t1)
				total.Add(res.stats.Messages)
				decodeErrors.Add(res.decodeErrors)
				payload.Add(uint64(res.stats.PayloadSize))
				logrus.WithFields(logrus.Fields{
					"container":     name,
					"messages":      res.stats.Messages,
					"schemas":       res.stats.Schemas,
					"type_switches": res.stats.TypeSwitches,
					"payload_size":  res.stats.PayloadSize.HR(),
					"decode_errors": res.decodeErrors,
					"time":          dt,
				}).Info("Counted")
				fmt.Printf("%d\t%s\n", res.stats.Messages, name)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}

		dt := utils.TimeDiff(time.Now(), t0)
		size := datasize.ByteSize(payload.Load())
		logrus.WithFields(logrus.Fields{
			"containers":    len(args),
			"messages":      total.Load(),
			"decode_errors": decodeErrors.Load(),
			"time":          dt,
			"messages_sec":  fmt.Sprintf("%.0f", utils.PerSecond(total.Load(), dt)),
			"throughput":    utils.Throughput(size, dt),
		}).Info("Total")
		if len(args) > 1 {
			fmt.Printf("%d\ttotal\n", total.Load())
		}
		if n := decodeErrors.Load(); n > 0 {
			return fmt.Errorf("%d messages could not be decoded", n)
		}
		return nil
	},
}
