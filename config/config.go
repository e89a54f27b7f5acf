// Package config implements the YAML config file parser
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/PowerDNS/pbz/config/logger"
	"github.com/PowerDNS/pbz/container"
	"github.com/PowerDNS/pbz/frame"
	"github.com/PowerDNS/pbz/status/healthtracker"
)

// DefaultConfigFile is loaded by the CLI when it exists and no other file
// was given.
const DefaultConfigFile = "pbz.yaml"

// DefaultRequestTimeout is the default timeout for a single storage
// operation started from the CLI.
const DefaultRequestTimeout = 10 * time.Minute

// Config is the config root object
type Config struct {
	Storage Storage              `yaml:"storage"`
	HTTP    HTTP                 `yaml:"http"`
	Reader  Reader               `yaml:"reader"`
	Writer  Writer               `yaml:"writer"`
	Health  healthtracker.Config `yaml:"health"`
	Log     logger.Config        `yaml:"log"`

	// Set to current version by main
	Version string `yaml:"-"`
}

// Storage configures the simpleblob backend that holds containers
type Storage struct {
	Type    string                 `yaml:"type"`    // Backend type, like "fs", "s3" or "memory"
	Options map[string]interface{} `yaml:"options"` // Backend specific options
	Timeout time.Duration          `yaml:"timeout"` // Per operation timeout
}

// HTTP configures the HTTP server with Prometheus metrics and status page
type HTTP struct {
	Address string `yaml:"address"` // Address like ":8000"
}

// Reader configures how containers are read
type Reader struct {
	MaxFrameSize datasize.ByteSize `yaml:"max_frame_size"` // 0 means no limit
}

// Writer configures how containers are written
type Writer struct {
	CompressionLevel int  `yaml:"compression_level"`
	FlushEachFrame   bool `yaml:"flush_each_frame"`
}

// ReaderOptions returns the container options for reading
func (c Config) ReaderOptions() []container.Option {
	return []container.Option{
		container.WithLimits(frame.Limits{MaxPayloadSize: c.Reader.MaxFrameSize}),
	}
}

// WriterOptions returns the container options for writing
func (c Config) WriterOptions() []container.Option {
	return []container.Option{
		container.WithCompressionLevel(c.Writer.CompressionLevel),
		container.WithFrameFlush(c.Writer.FlushEachFrame),
	}
}

// Check validates a Config instance
func (c Config) Check() error {
	if err := c.Log.Check(); err != nil {
		return err
	}
	if c.Storage.Type == "" && len(c.Storage.Options) > 0 {
		return fmt.Errorf("storage.type: required when storage.options are set")
	}
	if c.Storage.Timeout < 0 {
		return fmt.Errorf("storage.timeout: must not be negative")
	}
	if c.HTTP.Address != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Address); err != nil {
			return fmt.Errorf("http.address: %v", err)
		}
	}
	lvl := c.Writer.CompressionLevel
	if lvl < gzip.HuffmanOnly || lvl > gzip.BestCompression {
		return fmt.Errorf("writer.compression_level: must be between %d and %d",
			gzip.HuffmanOnly, gzip.BestCompression)
	}
	if err := c.Health.Check(); err != nil {
		return errors.Wrap(err, "health")
	}
	return nil
}

// secretOptions are storage options that are masked by String
var secretOptions = []string{"secret_key", "access_key", "password", "token"}

// String returns the config as a YAML string with secrets masked.
func (c Config) String() string {
	if len(c.Storage.Options) > 0 {
		masked := make(map[string]interface{}, len(c.Storage.Options))
		for k, v := range c.Storage.Options {
			if lo.Contains(secretOptions, k) {
				v = "***"
			}
			masked[k] = v
		}
		c.Storage.Options = masked
	}
	y, err := yaml.Marshal(c)
	if err != nil {
		logrus.Panicf("YAML marshal of config failed: %v", err) // Should never happen
	}
	return string(y)
}

// LoadYAML loads config from YAML. Any set value overwrites any existing value,
// but omitted keys are untouched.
func (c *Config) LoadYAML(yamlContents []byte, expandEnv bool) error {
	if expandEnv {
		yamlContents = []byte(os.ExpandEnv(string(yamlContents)))
	}
	return yaml.UnmarshalStrict(yamlContents, c)
}

// LoadYAMLFile loads config from a YAML file. Any set value overwrites any existing value,
// but omitted keys are untouched.
func (c *Config) LoadYAMLFile(fpath string, expandEnv bool) error {
	contents, err := os.ReadFile(fpath)
	if err != nil {
		return errors.Wrap(err, "open yaml file")
	}
	return c.LoadYAML(contents, expandEnv)
}

// Default returns a Config with default settings
func Default() Config {
	return Config{
		Storage: Storage{
			Type:    "fs",
			Options: map[string]interface{}{"root_path": "."},
			Timeout: DefaultRequestTimeout,
		},
		Reader: Reader{
			MaxFrameSize: frame.DefaultMaxPayloadSize,
		},
		Writer: Writer{
			CompressionLevel: gzip.DefaultCompression,
			FlushEachFrame:   true,
		},
		Health: healthtracker.DefaultConfig,
		Log:    logger.DefaultConfig,
	}
}
