package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/datazip-inc/sqlstream/checkpoint"
	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/telemetry"
	"github.com/datazip-inc/sqlstream/types"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/datazip-inc/sqlstream/utils/safego"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Database is the connection a scheduler polls through.
type Database interface {
	Querier
	Ping(ctx context.Context) error
	Reconnect(ctx context.Context) error
}

// State of a table within one poll cycle.
type State string

const (
	Idle          State = "idle"
	Querying      State = "querying"
	Emitting      State = "emitting"
	Checkpointing State = "checkpointing"
)

type tableState struct {
	cursor    *TableCursor
	state     State
	watermark *types.Value
	excluded  bool
	log       zerolog.Logger
}

type Option func(*Scheduler)

func WithClock(clock Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(s *Scheduler) { s.metrics = metrics }
}

// Scheduler polls every configured table once per interval, emits the new
// rows and checkpoints the watermark after each successful emit.
type Scheduler struct {
	db       Database
	store    checkpoint.Store
	emitter  Emitter
	interval time.Duration
	limit    int
	clock    Clock
	metrics  *telemetry.Metrics
	log      zerolog.Logger

	mu     sync.Mutex
	tables []*tableState

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	exec      *safego.Execution
}

// NewScheduler builds a cursor for every table and restores its watermark.
// Missing tables or columns fail here.
func NewScheduler(ctx context.Context, db Database, store checkpoint.Store, emitter Emitter, config *Config, log zerolog.Logger, options ...Option) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		db:       db,
		store:    store,
		emitter:  emitter,
		interval: config.SelectInterval,
		limit:    config.SelectLimit,
		clock:    SystemClock,
		log:      log,
		stop:     make(chan struct{}),
	}
	for _, option := range options {
		option(s)
	}

	if s.limit == 0 {
		log.Warn().Msg("select_limit is 0, every poll reads all remaining rows")
	}

	for _, tableConfig := range config.Tables {
		cursor, err := NewTableCursor(ctx, db, tableConfig, config.TagPrefix, s.clock, log)
		if err != nil {
			return nil, err
		}

		table := &tableState{cursor: cursor, state: Idle, log: log.With().Str("table", cursor.Table()).Logger()}
		if snapshot, found := store.Get(cursor.Table()); found {
			table.watermark, err = cursor.Restore(snapshot)
			if err != nil {
				return nil, err
			}
		}
		if table.watermark != nil {
			table.log.Info().Str("column", cursor.Column()).Msgf("resuming after %s", table.watermark)
		}
		s.tables = append(s.tables, table)
	}
	return s, nil
}

// Watermark returns the in-memory watermark of table.
func (s *Scheduler) Watermark(table string) (*types.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tables {
		if t.cursor.Table() == table {
			return t.watermark, true
		}
	}
	return nil, false
}

// State returns the current state of table.
func (s *Scheduler) State(table string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tables {
		if t.cursor.Table() == table {
			return t.state
		}
	}
	return ""
}

func (s *Scheduler) setState(table *tableState, state State) {
	s.mu.Lock()
	table.state = state
	s.mu.Unlock()
}

// Tick runs one poll cycle over every table. A cycle in progress is never
// interrupted by ctx; the returned error aggregates every table failure.
func (s *Scheduler) Tick(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var result *multierror.Error
	for _, table := range s.tables {
		if table.excluded {
			continue
		}
		if err := s.pollTable(ctx, table); err != nil {
			s.metrics.PollError(table.cursor.Table())
			result = multierror.Append(result, fmt.Errorf("table[%s]: %w", table.cursor.Table(), err))
		}
	}
	return result.ErrorOrNil()
}

func (s *Scheduler) pollTable(ctx context.Context, table *tableState) (err error) {
	defer safego.RecoverTo(table.log, &err)
	defer s.setState(table, Idle)

	if err := s.db.Ping(ctx); err != nil {
		table.log.Warn().Err(err).Msg("database unreachable, reconnecting")
		if err := s.db.Reconnect(ctx); err != nil {
			table.log.Error().Err(err).Msg("reconnect failed, skipping table this cycle")
			return err
		}
	}

	s.setState(table, Querying)
	batch, err := table.cursor.Poll(ctx, table.watermark, s.limit)
	if err != nil {
		if errors.Is(err, constants.ErrSchema) || utils.IsDeterministic(err) {
			table.excluded = true
			table.log.Warn().Err(err).Msg("excluding table from polling until restart")
		} else {
			table.log.Error().Err(err).Msg("poll failed")
		}
		return err
	}
	if batch.Rows == 0 {
		return nil
	}

	s.setState(table, Emitting)
	for _, group := range batch.Groups {
		if err := s.emitter.Emit(ctx, group.Tag, group.Records); err != nil {
			table.log.Error().Err(err).Str("tag", group.Tag).Msg("emit failed, watermark not advanced")
			return err
		}
	}
	s.metrics.RowsEmitted(table.cursor.Table(), batch.Rows)

	s.setState(table, Checkpointing)
	s.mu.Lock()
	table.watermark = batch.Watermark
	s.mu.Unlock()
	s.store.Set(table.cursor.Table(), table.cursor.Snapshot(batch.Watermark))
	if err := s.store.Flush(ctx); err != nil {
		s.metrics.CheckpointFlushError()
		table.log.Error().Err(err).Msg("failed to persist checkpoint")
		return err
	}

	table.log.Debug().Int("rows", batch.Rows).Int("skipped", batch.Skipped).Msgf("advanced watermark to %s", batch.Watermark)
	return nil
}

// Start runs the poll loop in the background: one cycle, then a sleep of
// the select interval, until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.exec = safego.Run(s.log, func() {
			for {
				select {
				case <-s.stop:
					return
				case <-ctx.Done():
					return
				default:
				}

				if err := s.Tick(ctx); err != nil {
					s.log.Debug().Err(err).Msg("poll cycle finished with errors")
				}

				select {
				case <-s.stop:
					return
				case <-ctx.Done():
					return
				case <-s.clock.After(s.interval):
				}
			}
		})
	})
}

// Stop signals the loop and waits for the current cycle to finish. It is
// safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})

	// a Start after Stop is a noop
	s.startOnce.Do(func() {})
	if s.exec != nil {
		<-s.exec.Done()
	}
}
