package destination

import (
	"fmt"
	"time"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/utils"
)

// TableConfig describes one destination table.
type TableConfig struct {
	Table string `mapstructure:"table" json:"table" validate:"required"`
	// ColumnMapping is "field:column,field"; empty keeps every field as is
	ColumnMapping string `mapstructure:"column_mapping" json:"column_mapping,omitempty"`
	// Pattern is a tag glob; the table without one is the default
	Pattern string `mapstructure:"pattern" json:"pattern,omitempty"`
	// NumRetries bounds per row retries in the fallback path, 0 means the default
	NumRetries int `mapstructure:"num_retries" json:"num_retries,omitempty" validate:"gte=0"`
}

// Config is the import part of a sink.
type Config struct {
	RemoveTagPrefix string        `mapstructure:"remove_tag_prefix" json:"remove_tag_prefix,omitempty"`
	EnableFallback  bool          `mapstructure:"enable_fallback" json:"enable_fallback"`
	FlushWorkers    int           `mapstructure:"flush_workers" json:"flush_workers" validate:"gte=0"`
	MaxRetries      int           `mapstructure:"max_retries" json:"max_retries" validate:"gte=0"`
	RetryWait       time.Duration `mapstructure:"retry_wait" json:"retry_wait"`
	Tables          []TableConfig `mapstructure:"tables" json:"tables" validate:"required,min=1,dive"`
}

func (c *Config) SetDefaults() {
	if c.FlushWorkers == 0 {
		c.FlushWorkers = constants.DefaultFlushWorkers
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = constants.DefaultMaxRetries
	}
	if c.RetryWait == 0 {
		c.RetryWait = constants.DefaultRetryWait
	}
	for idx := range c.Tables {
		if c.Tables[idx].NumRetries == 0 {
			c.Tables[idx].NumRetries = constants.DefaultRowRetries
		}
	}
}

func (c *Config) Validate() error {
	c.SetDefaults()
	if err := utils.Validate(c); err != nil {
		return err
	}
	if c.RetryWait < 0 {
		return fmt.Errorf("%w: retry_wait must be positive", constants.ErrConfiguration)
	}
	return nil
}
