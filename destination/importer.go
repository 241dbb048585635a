package destination

import (
	"context"
	"fmt"
	"time"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/telemetry"
	"github.com/datazip-inc/sqlstream/types"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/rs/zerolog"
)

// Inserter writes rows into a table in one transaction.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []types.Row) error
}

// Outcome summarises one import.
type Outcome struct {
	Imported int
	// Dropped counts records lost to mapping or row failures
	Dropped  int
	Fallback bool
}

type ImporterOption func(*Importer)

// WithRowBackoff sets the wait between row retries in the fallback path.
func WithRowBackoff(wait, maxWait time.Duration) ImporterOption {
	return func(i *Importer) {
		i.rowWait, i.rowMaxWait = wait, maxWait
	}
}

func WithImporterMetrics(metrics *telemetry.Metrics) ImporterOption {
	return func(i *Importer) { i.metrics = metrics }
}

// Importer bulk inserts batches and degrades to row by row inserts when a
// batch can never succeed as a whole. It is safe for concurrent use.
type Importer struct {
	db         Inserter
	fallback   bool
	rowWait    time.Duration
	rowMaxWait time.Duration
	metrics    *telemetry.Metrics
	log        zerolog.Logger
}

func NewImporter(db Inserter, enableFallback bool, log zerolog.Logger, options ...ImporterOption) *Importer {
	importer := &Importer{
		db:         db,
		fallback:   enableFallback,
		rowWait:    constants.DefaultRowRetryWait,
		rowMaxWait: constants.MaxRowRetryWait,
		log:        log,
	}
	for _, option := range options {
		option(importer)
	}
	return importer
}

// Import maps records and inserts them into dest. The returned error is
// classified: a transient one means the same batch may be retried as is.
func (i *Importer) Import(ctx context.Context, dest *Table, records []types.Record) (Outcome, error) {
	rows, dropped := i.MapRecords(dest, records)
	outcome, err := i.ImportRows(ctx, dest, rows)
	outcome.Dropped += dropped
	return outcome, err
}

// MapRecords applies the column mapping of dest. Records that cannot be
// mapped are logged, counted and left out; mapping is deterministic, so a
// retried batch is mapped only once.
func (i *Importer) MapRecords(dest *Table, records []types.Record) ([]types.Row, int) {
	rows := make([]types.Row, 0, len(records))
	dropped := 0
	for idx, record := range records {
		row, err := dest.Map(record)
		if err != nil {
			i.log.Warn().Str("table", dest.Name).Int("record", idx).Err(err).Msg("dropping record that failed mapping")
			dropped++
			continue
		}
		rows = append(rows, row)
	}
	if dropped > 0 {
		i.metrics.RowsDropped(dest.Name, telemetry.ReasonMapping, dropped)
	}
	return rows, dropped
}

// ImportRows inserts already mapped rows in one transaction, degrading to
// row by row inserts on a deterministic failure when fallback is enabled.
func (i *Importer) ImportRows(ctx context.Context, dest *Table, rows []types.Row) (Outcome, error) {
	log := i.log.With().Str("table", dest.Name).Logger()

	var outcome Outcome
	if len(rows) == 0 {
		return outcome, nil
	}

	err := i.db.InsertRows(ctx, dest.Name, rows)
	if err == nil {
		outcome.Imported = len(rows)
		i.metrics.RowsImported(dest.Name, len(rows))
		return outcome, nil
	}

	if !utils.IsDeterministic(err) {
		return outcome, utils.Classify(utils.Transient, fmt.Errorf("failed to import %d rows into table[%s]: %w", len(rows), dest.Name, err))
	}
	if !i.fallback {
		return outcome, utils.Classify(utils.Deterministic, fmt.Errorf("failed to import %d rows into table[%s]: %w", len(rows), dest.Name, err))
	}

	log.Warn().Err(err).Int("rows", len(rows)).Msg("batch insert failed, importing row by row")
	i.metrics.Fallback(dest.Name)
	outcome.Fallback = true

	imported, dropped := i.importRows(ctx, dest, rows, log)
	outcome.Imported += imported
	outcome.Dropped += dropped
	return outcome, nil
}

func (i *Importer) importRows(ctx context.Context, dest *Table, rows []types.Row, log zerolog.Logger) (int, int) {
	backoff := utils.Backoff{Attempts: dest.retries + 1, Wait: i.rowWait, MaxWait: i.rowMaxWait}

	imported, dropped := 0, 0
	for idx, row := range rows {
		err := utils.RetryOnBackoff(ctx, log, backoff, func(_ int) error {
			return i.db.InsertRows(ctx, dest.Name, []types.Row{row})
		})
		switch {
		case err == nil:
			imported++
		case utils.IsDeterministic(err):
			log.Warn().Int("row", idx).Err(err).Msg("dropping row rejected by the database")
			dropped++
			i.metrics.RowsDropped(dest.Name, telemetry.ReasonDeterministic, 1)
		default:
			log.Error().Int("row", idx).Int("attempts", backoff.Attempts).Err(err).Msg("dropping row after exhausting retries")
			dropped++
			i.metrics.RowsDropped(dest.Name, telemetry.ReasonRetries, 1)
		}
	}
	i.metrics.RowsImported(dest.Name, imported)
	return imported, dropped
}
