package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/datazip-inc/sqlstream/checkpoint"
	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/destination"
	"github.com/datazip-inc/sqlstream/pkg/jdbc"
	"github.com/datazip-inc/sqlstream/pkg/kafka"
	"github.com/datazip-inc/sqlstream/source"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/datazip-inc/sqlstream/utils/logger"
	"github.com/spf13/viper"
)

type EmitterType string

const (
	KafkaEmitter  EmitterType = "kafka"
	StdoutEmitter EmitterType = "stdout"
)

// Config is the whole configuration file.
type Config struct {
	Log         logger.Options `mapstructure:"log" json:"log"`
	MetricsAddr string         `mapstructure:"metrics_addr" json:"metrics_addr,omitempty"`
	Source      *SourceConfig  `mapstructure:"source" json:"source,omitempty"`
	Sink        *SinkConfig    `mapstructure:"sink" json:"sink,omitempty"`
}

type EmitterConfig struct {
	Type               EmitterType `mapstructure:"type" json:"type,omitempty"`
	kafka.WriterConfig `mapstructure:",squash"`
}

type SourceConfig struct {
	Connection    jdbc.Config       `mapstructure:"connection" json:"connection"`
	source.Config `mapstructure:",squash"`
	State         checkpoint.Config `mapstructure:"state" json:"state"`
	// StateFile is the legacy form of state.path
	StateFile string        `mapstructure:"state_file" json:"state_file,omitempty"`
	Emitter   EmitterConfig `mapstructure:"emitter" json:"emitter"`
}

type SinkConfig struct {
	Connection         jdbc.Config        `mapstructure:"connection" json:"connection"`
	destination.Config `mapstructure:",squash"`
	Kafka              kafka.ReaderConfig `mapstructure:"kafka" json:"kafka"`
}

func (c *SourceConfig) Validate() error {
	if c.StateFile != "" {
		if c.State.Path != "" && c.State.Path != c.StateFile {
			return fmt.Errorf("%w: state_file and state.path are both set", constants.ErrConfiguration)
		}
		c.State.Path = c.StateFile
	}
	if c.Emitter.Type == "" {
		c.Emitter.Type = StdoutEmitter
	}

	var errs []error
	errs = append(errs, c.Connection.Validate(), c.Config.Validate(), c.State.Validate())
	switch c.Emitter.Type {
	case KafkaEmitter:
		errs = append(errs, c.Emitter.WriterConfig.Validate())
	case StdoutEmitter:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown emitter type %q", constants.ErrConfiguration, c.Emitter.Type))
	}
	return prefixErrors("source", errs)
}

func (c *SinkConfig) Validate() error {
	errs := []error{c.Connection.Validate(), c.Config.Validate(), c.Kafka.Validate()}
	return prefixErrors("sink", errs)
}

func (c *Config) Validate() error {
	if c.Source == nil && c.Sink == nil {
		return fmt.Errorf("%w: neither source nor sink is configured", constants.ErrConfiguration)
	}
	if err := utils.Validate(&c.Log); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Source != nil {
		if err := c.Source.Validate(); err != nil {
			return err
		}
	}
	if c.Sink != nil {
		if err := c.Sink.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func prefixErrors(section string, errs []error) error {
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", section, err)
	}
	return nil
}

// LoadConfig reads path and applies SQLSTREAM_ prefixed environment
// overrides, e.g. SQLSTREAM_SOURCE_CONNECTION_PASSWORD.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := logger.DefaultOptions()
	v.SetDefault("log.level", defaults.Level)
	v.SetDefault("log.console", defaults.Console)
	v.SetDefault("log.max_size_mb", defaults.MaxSizeMB)
	v.SetDefault("log.max_backups", defaults.MaxBackups)
	v.SetDefault("log.max_age_days", defaults.MaxAgeDays)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: failed to read config file %s: %s", constants.ErrConfiguration, path, err)
	}

	// only sections present in the file get defaults, 0 stays a valid limit
	if v.IsSet("source") && !v.IsSet("source.select_limit") {
		v.Set("source.select_limit", constants.DefaultSelectLimit)
	}
	if v.IsSet("sink") && !v.IsSet("sink.enable_fallback") {
		v.Set("sink.enable_fallback", true)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("%w: failed to decode config file %s: %s", constants.ErrConfiguration, path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
