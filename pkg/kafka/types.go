package kafka

import (
	"fmt"
	"time"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/utils"
)

// WriterConfig configures the source side producer.
type WriterConfig struct {
	Brokers []string `mapstructure:"brokers" json:"brokers" validate:"required,min=1"`
	// Topic receives every event; empty uses the event tag as topic
	Topic            string `mapstructure:"topic" json:"topic,omitempty"`
	AutoCreateTopics bool   `mapstructure:"auto_create_topics" json:"auto_create_topics,omitempty"`
}

func (c *WriterConfig) Validate() error {
	return utils.Validate(c)
}

// ReaderConfig configures the sink side consumer group.
type ReaderConfig struct {
	Brokers       []string      `mapstructure:"brokers" json:"brokers" validate:"required,min=1"`
	Topics        []string      `mapstructure:"topics" json:"topics" validate:"required,min=1"`
	GroupID       string        `mapstructure:"group_id" json:"group_id,omitempty"`
	BatchSize     int           `mapstructure:"batch_size" json:"batch_size,omitempty" validate:"gte=0"`
	FlushInterval time.Duration `mapstructure:"flush_interval" json:"flush_interval,omitempty"`
}

func (c *ReaderConfig) Validate() error {
	if c.GroupID == "" {
		c.GroupID = constants.DefaultConsumerGroup
	}
	if c.BatchSize == 0 {
		c.BatchSize = constants.DefaultBatchSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = constants.DefaultFlushInterval
	}
	if err := utils.Validate(c); err != nil {
		return err
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("%w: flush_interval must be positive", constants.ErrConfiguration)
	}
	return nil
}
