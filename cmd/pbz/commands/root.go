package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PowerDNS/pbz/config"
	"github.com/PowerDNS/pbz/config/logger"
)

var (
	configFile string
	debug      bool
	logConfig  bool
	timeout    time.Duration
	conf       config.Config
)

var (
	// These are set by Execute
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

const (
	TimeoutExitCode = 75 // picked EX_TEMPFAIL from sysexits.h
)

func applyTimeout() {
	if timeout <= 0 {
		return
	}
	logrus.WithField("timeout", timeout).Info("Setting command timeout")
	go func() {
		time.Sleep(timeout)
		logrus.Warn("Timeout reached")
		t := time.AfterFunc(10*time.Second, func() {
			logrus.Error("Shutdown took too long, forcing exit")
			os.Exit(TimeoutExitCode)
		})
		rootCancel()
		t.Stop()
		logrus.Error("Exiting due to timeout")
		os.Exit(TimeoutExitCode)
	}()
}

// loadConfig loads the config file. The default file is optional, a file
// passed with --config is not.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	c := config.Default()
	c.Version = version
	explicit := cmd.Flags().Changed("config")
	if _, err := os.Stat(configFile); err == nil || explicit {
		if err := c.LoadYAMLFile(configFile, true); err != nil {
			return c, errors.Wrapf(err, "load config file %q", configFile)
		}
	}
	// Also check at this stage. A config must always be valid, even if you
	// later override some items.
	if err := c.Check(); err != nil {
		return c, errors.Wrap(err, "config file error")
	}
	c.Log = c.Log.Merge(logger.FlagConfig)
	if debug {
		c.Log.Level = "debug"
	}
	return c, nil
}

var rootHelp = `Read, write and inspect PBZ containers: gzip compressed streams of
protobuf messages that carry their own schemas.
`

var rootCmd = &cobra.Command{
	Use:   "pbz",
	Short: "Read, write and inspect PBZ containers",
	Long:  rootHelp,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		conf, err = loadConfig(cmd)
		if err != nil {
			logrus.Fatal(err)
		}
		if err := logger.Configure(conf.Log); err != nil {
			logrus.Fatalf("Invalid log flags: %v", err)
		}
		logrus.WithField("version", version).Debug("Running")
		if logConfig {
			logrus.Infof("Effective configuration:\n%s\n", conf.String())
		}
		applyTimeout()
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultConfigFile,
		"Config file, only required to exist when given explicitly")
	rootCmd.PersistentFlags().BoolVar(&logConfig, "log-config", false, "Log the evaluated configuration on startup")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0,
		fmt.Sprintf("Timeout for command execution (exit code %d)", TimeoutExitCode))
	logger.RegisterFlagsWith(rootCmd.PersistentFlags().StringVar)
}

func Execute() {
	rootCtx, rootCancel = context.WithCancel(context.Background())
	defer rootCancel()
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) && timeout > 0 {
			logrus.Error("Context cancelled, likely due to timeout")
			os.Exit(TimeoutExitCode)
		}
		logrus.WithError(err).Error("Error")
		os.Exit(1)
	}
}
