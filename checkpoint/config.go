package checkpoint

import (
	"context"
	"fmt"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/rs/zerolog"
)

// Config selects the checkpoint storage. An empty config keeps checkpoints
// in memory only.
type Config struct {
	Type     constants.StateType `mapstructure:"type" json:"type,omitempty" validate:"omitempty,oneof=file memory s3"`
	Path     string              `mapstructure:"path" json:"path,omitempty"`
	S3Config `mapstructure:",squash"`
}

func (c *Config) SetDefaults() {
	if c.Type == "" && c.Path != "" {
		c.Type = constants.FileState
	}
	if c.Type == "" {
		c.Type = constants.MemoryState
	}
}

func (c *Config) Validate() error {
	c.SetDefaults()
	switch c.Type {
	case constants.FileState:
		if c.Path == "" {
			return fmt.Errorf("%w: file checkpoint storage requires a path", constants.ErrConfiguration)
		}
	case constants.S3State:
		if c.Bucket == "" || c.Key == "" {
			return fmt.Errorf("%w: s3 checkpoint storage requires bucket and key", constants.ErrConfiguration)
		}
	case constants.MemoryState:
	default:
		return fmt.Errorf("%w: unknown checkpoint storage type %q", constants.ErrConfiguration, c.Type)
	}
	return nil
}

// Open opens the configured store and loads its document.
func Open(ctx context.Context, config *Config, log zerolog.Logger) (Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case constants.FileState:
		return OpenFile(config.Path, log)
	case constants.S3State:
		client, err := NewS3Client(ctx, config.S3Config, log)
		if err != nil {
			return nil, err
		}
		return OpenS3(ctx, client, config.Bucket, config.Key, log)
	default:
		return NewMemoryStore(log), nil
	}
}
