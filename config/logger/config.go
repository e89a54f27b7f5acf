package logger

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var (
	LogLevels     = []string{"debug", "info", "warning", "error", "fatal"}
	LogFormats    = []string{"human", "logfmt", "json"}
	LogTimestamps = []string{"short", "disable", "full"}
)

// Config configures logging
type Config struct {
	Level     string `yaml:"level"`     // One of LogLevels
	Format    string `yaml:"format"`    // One of LogFormats
	Timestamp string `yaml:"timestamp"` // One of LogTimestamps
}

// DefaultConfig defines the default configuration
var DefaultConfig = Config{
	Level:     "info",
	Format:    "human",
	Timestamp: "short",
}

// FlagConfig captures flag values and defaults to zero values
var FlagConfig = Config{}

// StringVarFlagFunc has the signature of pflag.FlagSet.StringVar
type StringVarFlagFunc func(*string, string, string, string)

// RegisterFlagsWith registers the log flags with a flag set, like the
// persistent flags of a Cobra command.
// The default values are set to their zero value to allow detecting when
// the flag has been set. This allows the use of a config file for logging
// and overriding it with these flags.
func RegisterFlagsWith(stringVar StringVarFlagFunc) {
	stringVar(&FlagConfig.Level, "log-level", "", "Log level "+
		addDefaults(DefaultConfig.Level, LogLevels))
	stringVar(&FlagConfig.Format, "log-format", "", "Log format "+
		addDefaults(DefaultConfig.Format, LogFormats))
	stringVar(&FlagConfig.Timestamp, "log-timestamp", "", "Log timestamp "+
		addDefaults(DefaultConfig.Timestamp, LogTimestamps))
}

// Check validates a Config instance
func (c Config) Check() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("log.level: must be one of: %s", strings.Join(LogLevels, ", "))
	}
	if !lo.Contains(LogFormats, c.Format) {
		return fmt.Errorf("log.format: must be one of: %s", strings.Join(LogFormats, ", "))
	}
	if c.Timestamp != "" && !lo.Contains(LogTimestamps, c.Timestamp) {
		return fmt.Errorf("log.timestamp: must be one of: %s", strings.Join(LogTimestamps, ", "))
	}
	return nil
}

// Merge returns c with every non-empty field of o applied on top, as used
// for the --log-* flags.
func (c Config) Merge(o Config) Config {
	return Config{
		Level:     lo.Ternary(o.Level != "", o.Level, c.Level),
		Format:    lo.Ternary(o.Format != "", o.Format, c.Format),
		Timestamp: lo.Ternary(o.Timestamp != "", o.Timestamp, c.Timestamp),
	}
}

// Configure configures the standard logrus logger according to Config
func Configure(c Config) error {
	return ConfigureLogger(logrus.StandardLogger(), c)
}

// ConfigureLogger configures a specific logger. The Config is checked
// first, an invalid Config leaves the logger untouched.
func ConfigureLogger(l *logrus.Logger, c Config) error {
	if err := c.Check(); err != nil {
		return err
	}
	noTimestamp := c.Timestamp == "disable"
	fullTimestamp := c.Timestamp == "full"

	var formatter logrus.Formatter
	switch c.Format {
	case "json":
		formatter = &logrus.JSONFormatter{DisableTimestamp: noTimestamp}
	case "logfmt":
		formatter = &logrus.TextFormatter{
			DisableColors:    true, // this sets logfmt
			DisableTimestamp: noTimestamp,
			FullTimestamp:    fullTimestamp,
		}
	default:
		formatter = &NamespaceFormatter{
			Parent: &logrus.TextFormatter{
				DisableTimestamp: noTimestamp,
				FullTimestamp:    fullTimestamp,
			},
		}
	}
	l.SetFormatter(formatter)

	level, _ := logrus.ParseLevel(c.Level) // checked above
	l.SetLevel(level)
	return nil
}

func addDefaults(def string, options []string) string {
	return fmt.Sprintf("(default: %s; options: %s)", def, strings.Join(options, ", "))
}
