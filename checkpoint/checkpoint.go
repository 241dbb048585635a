// Package checkpoint persists the last delivered row of every source table so
// polling resumes where it stopped after a restart.
package checkpoint

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/types"
	"sigs.k8s.io/yaml"
)

// Store maps a table name to a snapshot of its last delivered row. Only the
// columns needed to resume are kept in the snapshot, usually the watermark.
type Store interface {
	Get(table string) (types.Row, bool)
	Set(table string, snapshot types.Row)
	// Flush persists every snapshot set so far
	Flush(ctx context.Context) error
	Close() error
}

type document struct {
	LastRecords map[string]types.Row `json:"last_records"`
}

// records is the in-memory mapping shared by every store
type records struct {
	mu   sync.RWMutex
	rows map[string]types.Row
}

func orEmpty(rows map[string]types.Row) map[string]types.Row {
	if rows == nil {
		return make(map[string]types.Row)
	}
	return rows
}

func (r *records) Get(table string) (types.Row, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, found := r.rows[table]
	if !found {
		return nil, false
	}
	return maps.Clone(row), true
}

func (r *records) Set(table string, snapshot types.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[table] = maps.Clone(snapshot)
}

// Snapshot returns a copy of every stored row, keyed by table.
func (r *records) Snapshot() map[string]types.Row {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]types.Row, len(r.rows))
	for table, row := range r.rows {
		out[table] = maps.Clone(row)
	}
	return out
}

func (r *records) encode() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Encode(r.rows)
}

// Encode renders the checkpoint document.
func Encode(rows map[string]types.Row) ([]byte, error) {
	data, err := yaml.Marshal(document{LastRecords: rows})
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint document: %s", err)
	}
	return data, nil
}

// Decode parses a checkpoint document. An empty, null or false document is an
// empty mapping; any other shape than a mapping of table to row is a
// configuration error.
func Decode(data []byte) (map[string]types.Row, error) {
	if strings.TrimSpace(string(data)) == "" {
		return map[string]types.Row{}, nil
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed checkpoint document: %s", constants.ErrConfiguration, err)
	}

	switch top := raw.(type) {
	case nil:
		return map[string]types.Row{}, nil
	case bool:
		if !top {
			return map[string]types.Row{}, nil
		}
		return nil, fmt.Errorf("%w: checkpoint document is not a mapping", constants.ErrConfiguration)
	case map[string]any:
		tables, found := top[constants.LastRecordsKey]
		if !found || tables == nil {
			return map[string]types.Row{}, nil
		}
		tableMap, ok := tables.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a mapping of table to row", constants.ErrConfiguration, constants.LastRecordsKey)
		}
		for table, row := range tableMap {
			if _, ok := row.(map[string]any); !ok && row != nil {
				return nil, fmt.Errorf("%w: checkpoint of table[%s] is not a mapping", constants.ErrConfiguration, table)
			}
		}
	default:
		return nil, fmt.Errorf("%w: checkpoint document is not a mapping", constants.ErrConfiguration)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed checkpoint document: %s", constants.ErrConfiguration, err)
	}
	rows := make(map[string]types.Row, len(doc.LastRecords))
	for table, row := range doc.LastRecords {
		if row != nil {
			rows[table] = row
		}
	}
	return rows, nil
}
