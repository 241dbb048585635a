package destination

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/pkg/jdbc"
	"github.com/datazip-inc/sqlstream/types"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyInserter fails scripted calls and forwards the rest.
type flakyInserter struct {
	mu    sync.Mutex
	next  Inserter
	fail  func(call int, rows []types.Row) error
	calls int
	rows  []types.Row
}

func (f *flakyInserter) InsertRows(ctx context.Context, table string, rows []types.Row) error {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(call, rows); err != nil {
			return err
		}
	}
	if f.next != nil {
		return f.next.InsertRows(ctx, table, rows)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	return nil
}

var (
	errLockTimeout = utils.Classify(utils.Transient, errors.New("lock wait timeout exceeded"))
	errNoColumn    = utils.Classify(utils.Deterministic, fmt.Errorf("%w: column does not exist", constants.ErrSchema))
)

func openLogs(t *testing.T) (*jdbc.Connection, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sink.db")
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	_, err = raw.Exec(`CREATE TABLE logs (id INTEGER PRIMARY KEY AUTOINCREMENT, message TEXT NOT NULL, host TEXT)`)
	require.NoError(t, err)

	conn, err := jdbc.Open(context.Background(), &jdbc.Config{Adapter: constants.SQLite, Database: path, PoolSize: 2}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, raw
}

func countLogs(t *testing.T, raw *sql.DB) int {
	t.Helper()
	var count int
	require.NoError(t, raw.QueryRow(`SELECT COUNT(*) FROM logs`).Scan(&count))
	return count
}

func logRecords(messages ...string) []types.Record {
	records := make([]types.Record, 0, len(messages))
	for _, message := range messages {
		records = append(records, types.NewRecord(time.Now(), types.Row{"message": types.Text(message), "host": types.Text("web1")}))
	}
	return records
}

func TestImportFallbackDropsPoisonRow(t *testing.T) {
	conn, raw := openLogs(t)
	importer := NewImporter(conn, true, zerolog.Nop(), WithRowBackoff(time.Millisecond, time.Millisecond))
	logs := mustTable(t, TableConfig{Table: "logs"})

	records := logRecords("message 1", "message 2", "message 3")
	records[1].Fields["unknown"] = types.Text("boom")

	outcome, err := importer.Import(context.Background(), logs, records)
	require.NoError(t, err)
	assert.True(t, outcome.Fallback)
	assert.Equal(t, 2, outcome.Imported)
	assert.Equal(t, 1, outcome.Dropped)

	rows, err := raw.Query(`SELECT message FROM logs ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	var messages []string
	for rows.Next() {
		var message string
		require.NoError(t, rows.Scan(&message))
		messages = append(messages, message)
	}
	assert.Equal(t, []string{"message 1", "message 3"}, messages)
}

func TestImportDeterministicWithoutFallback(t *testing.T) {
	conn, raw := openLogs(t)
	importer := NewImporter(conn, false, zerolog.Nop())
	logs := mustTable(t, TableConfig{Table: "logs"})

	records := logRecords("message 1", "message 2")
	records[0].Fields["unknown"] = types.Text("boom")

	outcome, err := importer.Import(context.Background(), logs, records)
	require.Error(t, err)
	assert.True(t, utils.IsDeterministic(err))
	assert.False(t, outcome.Fallback)
	assert.Zero(t, countLogs(t, raw), "the batch transaction is rolled back")
}

func TestImportTransientIsNotFallback(t *testing.T) {
	inserter := &flakyInserter{fail: func(int, []types.Row) error { return errLockTimeout }}
	importer := NewImporter(inserter, true, zerolog.Nop())

	outcome, err := importer.Import(context.Background(), mustTable(t, TableConfig{Table: "logs"}), logRecords("a", "b"))
	require.Error(t, err)
	assert.False(t, utils.IsDeterministic(err))
	assert.False(t, outcome.Fallback)
	assert.Equal(t, 1, inserter.calls)
}

func TestImportRowRetries(t *testing.T) {
	// bulk fails deterministically, then row "a" fails twice before landing
	// and row "b" never gets through
	inserter := &flakyInserter{fail: func(call int, rows []types.Row) error {
		switch {
		case call == 0:
			return errNoColumn
		case rows[0]["message"].Text() == "a" && call < 3:
			return errLockTimeout
		case rows[0]["message"].Text() == "b":
			return errLockTimeout
		}
		return nil
	}}
	importer := NewImporter(inserter, true, zerolog.Nop(), WithRowBackoff(time.Millisecond, time.Millisecond))
	logs := mustTable(t, TableConfig{Table: "logs", NumRetries: 2})

	outcome, err := importer.Import(context.Background(), logs, logRecords("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, Outcome{Imported: 1, Dropped: 1, Fallback: true}, outcome)
	require.Len(t, inserter.rows, 1)
	assert.Equal(t, "a", inserter.rows[0]["message"].Text())
	// one bulk call, three for a, three for b
	assert.Equal(t, 7, inserter.calls)
}

func TestImportMappingDrops(t *testing.T) {
	inserter := &flakyInserter{}
	importer := NewImporter(inserter, true, zerolog.Nop())
	logs := mustTable(t, TableConfig{Table: "logs", ColumnMapping: "message"})

	records := append(logRecords("kept"), types.NewRecord(time.Now(), types.Row{"host": types.Text("web1")}))
	outcome, err := importer.Import(context.Background(), logs, records)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Imported: 1, Dropped: 1}, outcome)
	assert.Equal(t, []types.Row{{"message": types.Text("kept")}}, inserter.rows)

	// nothing left to insert is not an error
	outcome, err = importer.Import(context.Background(), logs, records[1:])
	require.NoError(t, err)
	assert.Equal(t, Outcome{Dropped: 1}, outcome)
	assert.Equal(t, 1, inserter.calls)
}
