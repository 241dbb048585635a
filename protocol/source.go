package protocol

import (
	"context"
	"fmt"
	"os"

	"github.com/datazip-inc/sqlstream/checkpoint"
	"github.com/datazip-inc/sqlstream/pkg/jdbc"
	"github.com/datazip-inc/sqlstream/pkg/kafka"
	"github.com/datazip-inc/sqlstream/source"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// sourceCmd polls the configured tables and emits new rows
var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "poll source tables and emit new rows",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if config.Source == nil {
			return fmt.Errorf("no source section in %s", configPath)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSource(cmd.Context(), config.Source, once, log)
	},
}

type closableEmitter interface {
	source.Emitter
	Close() error
}

type stdoutEmitter struct {
	*source.JSONEmitter
}

func (stdoutEmitter) Close() error {
	return nil
}

func newEmitter(config *EmitterConfig, log zerolog.Logger) (closableEmitter, error) {
	if config.Type == KafkaEmitter {
		return kafka.NewEmitter(&config.WriterConfig, log)
	}
	return stdoutEmitter{source.NewJSONEmitter(os.Stdout)}, nil
}

func runSource(ctx context.Context, config *SourceConfig, once bool, log zerolog.Logger) error {
	conn, err := jdbc.Open(ctx, &config.Connection, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	store, err := checkpoint.Open(ctx, &config.State, log)
	if err != nil {
		return err
	}
	defer store.Close()

	emitter, err := newEmitter(&config.Emitter, log)
	if err != nil {
		return err
	}
	defer emitter.Close()

	scheduler, err := source.NewScheduler(ctx, conn, store, emitter, &config.Config, log, source.WithMetrics(metrics))
	if err != nil {
		return err
	}

	if once {
		return scheduler.Tick(ctx)
	}

	log.Info().Int("tables", len(config.Tables)).Dur("interval", config.SelectInterval).Msg("polling started")
	scheduler.Start(ctx)
	<-ctx.Done()
	scheduler.Stop()
	log.Info().Msg("polling stopped")
	return nil
}
