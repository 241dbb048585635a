package kafka

import (
	"context"
	"fmt"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/types"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Emitter publishes source records as wire events. Writes are synchronous
// and acknowledged by every in-sync replica, so a nil error means delivered.
type Emitter struct {
	writer messageWriter
	topic  string
	log    zerolog.Logger
}

func NewEmitter(config *WriterConfig, log zerolog.Logger) (*Emitter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: config.AutoCreateTopics,
	}
	return &Emitter{writer: writer, topic: config.Topic, log: log}, nil
}

// Emit writes one message per record, keyed by tag. Every message of the
// call carries the same batch id header.
func (e *Emitter) Emit(ctx context.Context, tag string, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}

	topic := e.topic
	if topic == "" {
		topic = tag
	}
	batchID := utils.ULID()

	messages := make([]kafka.Message, 0, len(records))
	for _, record := range records {
		value, err := types.Event{Tag: tag, Time: record.Time, Record: record.Fields}.Marshal()
		if err != nil {
			return utils.Classify(utils.Deterministic, fmt.Errorf("failed to encode event: %s", err))
		}
		messages = append(messages, kafka.Message{
			Topic:   topic,
			Key:     []byte(tag),
			Value:   value,
			Headers: []kafka.Header{{Key: constants.BatchIDHeader, Value: []byte(batchID)}},
		})
	}

	if err := e.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to publish %d events to topic[%s]: %w", len(messages), topic, err)
	}
	e.log.Debug().Str("tag", tag).Str("batch_id", batchID).Int("events", len(messages)).Msg("published batch")
	return nil
}

func (e *Emitter) Close() error {
	return e.writer.Close()
}
