package source

import (
	"fmt"
	"time"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/utils"
)

// TableConfig describes one polled table.
type TableConfig struct {
	Table string `mapstructure:"table" json:"table" validate:"required"`
	// Tag defaults to the table name
	Tag string `mapstructure:"tag" json:"tag,omitempty"`
	// UpdateColumn defaults to the single column primary key
	UpdateColumn string `mapstructure:"update_column" json:"update_column,omitempty"`
	TimeColumn   string `mapstructure:"time_column" json:"time_column,omitempty"`
	// TagColumn appends the row's value to the tag and removes the column
	TagColumn string `mapstructure:"tag_column" json:"tag_column,omitempty"`
	// Where is a template AND-ed into the range query
	Where string `mapstructure:"where" json:"where,omitempty"`
}

// Config is the polling part of a source.
type Config struct {
	TagPrefix      string        `mapstructure:"tag_prefix" json:"tag_prefix,omitempty"`
	SelectInterval time.Duration `mapstructure:"select_interval" json:"select_interval"`
	// SelectLimit of 0 disables batching
	SelectLimit int           `mapstructure:"select_limit" json:"select_limit" validate:"gte=0"`
	Tables      []TableConfig `mapstructure:"tables" json:"tables" validate:"required,min=1,dive"`
}

// SetDefaults fills unset options.
func (c *Config) SetDefaults() {
	if c.SelectInterval == 0 {
		c.SelectInterval = constants.DefaultSelectInterval
	}
	for idx := range c.Tables {
		if c.Tables[idx].Tag == "" {
			c.Tables[idx].Tag = c.Tables[idx].Table
		}
	}
}

func (c *Config) Validate() error {
	c.SetDefaults()
	if err := utils.Validate(c); err != nil {
		return err
	}
	if c.SelectInterval < 0 {
		return fmt.Errorf("%w: select_interval must be positive", constants.ErrConfiguration)
	}

	seen := make(map[string]bool, len(c.Tables))
	for _, table := range c.Tables {
		if seen[table.Table] {
			return fmt.Errorf("%w: table[%s] is configured twice", constants.ErrConfiguration, table.Table)
		}
		seen[table.Table] = true
	}
	return nil
}

// FullTag applies the tag prefix.
func FullTag(prefix, tag string) string {
	if prefix == "" {
		return tag
	}
	return prefix + "." + tag
}
