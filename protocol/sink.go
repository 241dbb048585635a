package protocol

import (
	"context"
	"fmt"

	"github.com/datazip-inc/sqlstream/destination"
	"github.com/datazip-inc/sqlstream/pkg/jdbc"
	"github.com/datazip-inc/sqlstream/pkg/kafka"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// sinkCmd consumes wire events and imports them into the destination tables
var sinkCmd = &cobra.Command{
	Use:   "sink",
	Short: "consume events and import them into destination tables",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if config.Sink == nil {
			return fmt.Errorf("no sink section in %s", configPath)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSink(cmd.Context(), config.Sink, log)
	},
}

func buildWriterPool(config *SinkConfig, conn *jdbc.Connection, log zerolog.Logger) (*destination.WriterPool, error) {
	if conn.PoolSize() < config.FlushWorkers {
		log.Warn().Int("pool_size", conn.PoolSize()).Int("flush_workers", config.FlushWorkers).Msg("connection pool is smaller than the number of flush workers, imports will wait for connections")
	}

	router, err := destination.BuildRouter(&config.Config)
	if err != nil {
		return nil, err
	}
	importer := destination.NewImporter(conn, config.EnableFallback, log, destination.WithImporterMetrics(metrics))
	return destination.NewWriterPool(router, importer, &config.Config, log, metrics), nil
}

func runSink(ctx context.Context, config *SinkConfig, log zerolog.Logger) error {
	conn, err := jdbc.Open(ctx, &config.Connection, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	pool, err := buildWriterPool(config, conn, log)
	if err != nil {
		return err
	}

	consumer, err := kafka.NewConsumer(&config.Kafka, pool, log)
	if err != nil {
		return err
	}
	defer consumer.Close()

	err = consumer.Run(ctx)
	log.Info().Int64("imported", pool.SyncedRecords()).Int64("dropped", pool.DroppedRecords()).Msg("sink stopped")
	return err
}
