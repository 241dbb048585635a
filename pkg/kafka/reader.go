package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/datazip-inc/sqlstream/types"
	"github.com/datazip-inc/sqlstream/utils/safego"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BatchWriter imports a buffer of events. It returns only once every event
// is settled; an error reports events that were given up on.
type BatchWriter interface {
	Write(ctx context.Context, events []types.Event) error
}

// Consumer reads wire events with a consumer group and hands them to a
// BatchWriter in buffers of batch_size, or whatever arrived within
// flush_interval. Offsets are committed only after a buffer is settled.
type Consumer struct {
	reader        messageReader
	writer        BatchWriter
	batchSize     int
	flushInterval time.Duration
	log           zerolog.Logger
}

func NewConsumer(config *ReaderConfig, writer BatchWriter, log zerolog.Logger) (*Consumer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		GroupID:     config.GroupID,
		GroupTopics: config.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	log.Info().Strs("topics", config.Topics).Str("group", config.GroupID).Msg("created consumer")
	return newConsumer(reader, writer, config, log), nil
}

func newConsumer(reader messageReader, writer BatchWriter, config *ReaderConfig, log zerolog.Logger) *Consumer {
	return &Consumer{
		reader:        reader,
		writer:        writer,
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		log:           log,
	}
}

// Run consumes until ctx is done; the pending buffer is flushed first.
func (c *Consumer) Run(ctx context.Context) error {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages := make(chan kafka.Message)
	fetchErr := make(chan error, 1)
	fetcher := safego.Run(c.log, func() {
		for {
			msg, err := c.reader.FetchMessage(fetchCtx)
			if err != nil {
				fetchErr <- err
				return
			}
			select {
			case messages <- msg:
			case <-fetchCtx.Done():
				return
			}
		}
	})
	defer func() {
		cancel()
		<-fetcher.Done()
	}()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	var buffer []kafka.Message
	for {
		select {
		case msg := <-messages:
			buffer = append(buffer, msg)
			if len(buffer) >= c.batchSize {
				c.flush(ctx, buffer)
				buffer = nil
			}
		case <-ticker.C:
			if len(buffer) > 0 {
				c.flush(ctx, buffer)
				buffer = nil
			}
		case err := <-fetchErr:
			c.flush(context.WithoutCancel(ctx), buffer)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		case <-ctx.Done():
			c.flush(context.WithoutCancel(ctx), buffer)
			return nil
		}
	}
}

func (c *Consumer) flush(ctx context.Context, buffer []kafka.Message) {
	if len(buffer) == 0 {
		return
	}

	events := make([]types.Event, 0, len(buffer))
	for _, msg := range buffer {
		event, err := types.UnmarshalEvent(msg.Value)
		if err != nil {
			c.log.Warn().Str("topic", msg.Topic).Int("partition", msg.Partition).Int64("offset", msg.Offset).Err(err).Msg("skipping undecodable message")
			continue
		}
		events = append(events, event)
	}

	if len(events) > 0 {
		if err := c.writer.Write(ctx, events); err != nil {
			c.log.Error().Err(err).Msg("some events of the batch were not imported")
		}
	}

	if err := c.reader.CommitMessages(ctx, buffer...); err != nil {
		c.log.Error().Err(err).Int("messages", len(buffer)).Msg("failed to commit offsets, messages will be redelivered")
		return
	}
	c.log.Debug().Int("messages", len(buffer)).Int("events", len(events)).Msg("committed batch")
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
