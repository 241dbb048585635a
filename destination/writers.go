/*
 * Copyright 2025 Olake By Datazip
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package destination

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/datazip-inc/sqlstream/telemetry"
	"github.com/datazip-inc/sqlstream/types"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// group is the part of a buffer routed to one table
type group struct {
	table   *Table
	records []types.Record
}

// WriterPool routes buffered events to their tables and imports every table
// group concurrently, retrying a group as a whole after transient failures.
type WriterPool struct {
	router      *Router
	importer    *Importer
	maxThreads  int
	backoff     utils.Backoff
	metrics     *telemetry.Metrics
	log         zerolog.Logger
	recordCount atomic.Int64
	dropCount   atomic.Int64
}

func NewWriterPool(router *Router, importer *Importer, config *Config, log zerolog.Logger, metrics *telemetry.Metrics) *WriterPool {
	return &WriterPool{
		router:     router,
		importer:   importer,
		maxThreads: max(config.FlushWorkers, 1),
		backoff:    utils.Backoff{Attempts: config.MaxRetries + 1, Wait: config.RetryWait, MaxWait: 32 * config.RetryWait},
		metrics:    metrics,
		log:        log,
	}
}

// Write blocks until every group of events is settled: imported, or logged
// and skipped once its retries are used up. The returned error lists the
// skipped groups.
func (w *WriterPool) Write(ctx context.Context, events []types.Event) error {
	groups := w.route(events)

	var mu sync.Mutex
	var result *multierror.Error

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.maxThreads)
	for _, one := range groups {
		eg.Go(func() error {
			if err := w.flush(ctx, one); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	return result.ErrorOrNil()
}

func (w *WriterPool) route(events []types.Event) []*group {
	var groups []*group
	byTable := make(map[*Table]*group)
	for _, event := range events {
		table := w.router.Route(event.Tag)
		one, found := byTable[table]
		if !found {
			one = &group{table: table}
			byTable[table] = one
			groups = append(groups, one)
		}
		one.records = append(one.records, types.NewRecord(event.Time, event.Record))
	}
	return groups
}

func (w *WriterPool) flush(ctx context.Context, one *group) error {
	log := w.log.With().Str("table", one.table.Name).Logger()

	rows, mapped := w.importer.MapRecords(one.table, one.records)
	w.dropCount.Add(int64(mapped))

	var outcome Outcome
	err := utils.RetryOnBackoff(ctx, log, w.backoff, func(attempt int) error {
		if attempt > 0 {
			w.metrics.BatchRetry(one.table.Name)
		}
		var err error
		outcome, err = w.importer.ImportRows(ctx, one.table, rows)
		// a batch is retried whole whatever its class, until max_retries
		return utils.Classify(utils.Transient, err)
	})
	if err != nil {
		log.Error().Err(err).Int("rows", len(rows)).Msg("skipping batch after exhausting retries")
		w.metrics.RowsDropped(one.table.Name, telemetry.ReasonRetries, len(rows))
		w.dropCount.Add(int64(len(rows)))
		return fmt.Errorf("table[%s]: %w", one.table.Name, err)
	}

	w.recordCount.Add(int64(outcome.Imported))
	w.dropCount.Add(int64(outcome.Dropped))
	return nil
}

// SyncedRecords returns the rows imported so far.
func (w *WriterPool) SyncedRecords() int64 {
	return w.recordCount.Load()
}

// DroppedRecords returns the records lost so far.
func (w *WriterPool) DroppedRecords() int64 {
	return w.dropCount.Load()
}
