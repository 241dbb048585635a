package source

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/datazip-inc/sqlstream/checkpoint"
	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/pkg/jdbc"
	"github.com/datazip-inc/sqlstream/telemetry"
	"github.com/datazip-inc/sqlstream/types"
	"github.com/stretchr/testify/require"
)

// fakeDB serves range queries from in-memory tables.
type fakeDB struct {
	mu           sync.Mutex
	schemas      map[string]*types.TableSchema
	rows         map[string][]types.Row
	queryErr     map[string]error
	pingErr      error
	reconnectErr error
	queries      map[string]int
	reconnects   int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		schemas:  make(map[string]*types.TableSchema),
		rows:     make(map[string][]types.Row),
		queryErr: make(map[string]error),
		queries:  make(map[string]int),
	}
}

func (f *fakeDB) addTable(schema *types.TableSchema) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemas[schema.Name] = schema
}

func (f *fakeDB) insert(table string, rows ...types.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[table] = append(f.rows[table], rows...)
}

func (f *fakeDB) queryCount(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[table]
}

func (f *fakeDB) DiscoverTable(_ context.Context, table string) (*types.TableSchema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	schema, found := f.schemas[table]
	if !found {
		return nil, fmt.Errorf("%w: table[%s] does not exist", constants.ErrSchema, table)
	}
	return schema, nil
}

func (f *fakeDB) RangeQuery(_ context.Context, req jdbc.RangeRequest) ([]jdbc.ScannedRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries[req.Table]++
	if err := f.queryErr[req.Table]; err != nil {
		return nil, err
	}

	rows := slices.Clone(f.rows[req.Table])
	slices.SortStableFunc(rows, func(a, b types.Row) int {
		cmp, _ := a[req.Column].Compare(b[req.Column])
		return cmp
	})

	var out []jdbc.ScannedRow
	for _, row := range rows {
		if req.After != nil {
			if cmp, _ := row[req.Column].Compare(*req.After); cmp <= 0 {
				continue
			}
		}
		out = append(out, jdbc.ScannedRow{Row: maps.Clone(row)})
		if req.Limit > 0 && len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeDB) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeDB) Reconnect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	if f.reconnectErr == nil {
		f.pingErr = nil
	}
	return f.reconnectErr
}

// stubQuerier returns fixed rows regardless of the request.
type stubQuerier struct {
	schema *types.TableSchema
	rows   []jdbc.ScannedRow
	last   jdbc.RangeRequest
}

func (s *stubQuerier) DiscoverTable(_ context.Context, _ string) (*types.TableSchema, error) {
	return s.schema, nil
}

func (s *stubQuerier) RangeQuery(_ context.Context, req jdbc.RangeRequest) ([]jdbc.ScannedRow, error) {
	s.last = req
	return s.rows, nil
}

type recordingEmitter struct {
	mu       sync.Mutex
	events   []types.Event
	failures int
}

func (e *recordingEmitter) Emit(_ context.Context, tag string, records []types.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failures > 0 {
		e.failures--
		return fmt.Errorf("downstream unavailable")
	}
	for _, record := range records {
		e.events = append(e.events, types.Event{Tag: tag, Time: record.Time, Record: record.Fields})
	}
	return nil
}

func (e *recordingEmitter) ids() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []int64
	for _, event := range e.events {
		ids = append(ids, event.Record["id"].Int())
	}
	return ids
}

// crashStore keeps the last flushed mapping apart from the live one, like a
// process that dies between emit and flush.
type crashStore struct {
	*checkpoint.MemoryStore
	mu       sync.Mutex
	flushErr error
	flushed  map[string]types.Row
}

func (c *crashStore) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flushErr != nil {
		return c.flushErr
	}
	c.flushed = c.Snapshot()
	return nil
}

type fakeClock struct {
	now   time.Time
	ticks chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, ticks: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) After(_ time.Duration) <-chan time.Time {
	return c.ticks
}

func messagesSchema() *types.TableSchema {
	return types.NewTableSchema("messages", []types.Column{
		{Name: "id", DBType: "integer"},
		{Name: "message", DBType: "text"},
		{Name: "updated_at", DBType: "timestamp"},
		{Name: "kind", DBType: "text"},
	}, []string{"id"})
}

func message(id int64) types.Row {
	return types.Row{
		"id":      types.Int(id),
		"message": types.Text(fmt.Sprintf("message %d", id)),
	}
}

// counterValue reads a counter from the metrics registry, matching label
// values in declaration order.
func counterValue(t *testing.T, metrics *telemetry.Metrics, name string, labels ...string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			pairs := metric.GetLabel()
			if len(pairs) != len(labels) {
				continue
			}
			matched := true
			for idx, pair := range pairs {
				if pair.GetValue() != labels[idx] {
					matched = false
				}
			}
			if matched {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
