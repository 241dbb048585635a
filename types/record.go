package types

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Row is one table row, keyed by column name.
type Row map[string]Value

// Record is a timestamped event, as emitted by a source table or consumed by
// a destination table.
type Record struct {
	Time   time.Time
	Fields Row
}

func NewRecord(eventTime time.Time, fields Row) Record {
	return Record{Time: eventTime, Fields: fields}
}

// Event is the wire form of a record together with its routing tag.
type Event struct {
	Tag    string    `json:"tag"`
	Time   time.Time `json:"time"`
	Record Row       `json:"record"`
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalEvent(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %s", err)
	}
	if event.Tag == "" {
		return Event{}, fmt.Errorf("event without tag")
	}
	return event, nil
}

// Column describes a single column of a table schema.
type Column struct {
	Name     string   `db:"column_name"`
	DBType   string   `db:"data_type"`
	Nullable bool     `db:"-"`
	DataType DataType `db:"-"`
}

// TableSchema is discovered once at startup and cached for the process lifetime.
type TableSchema struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
	columns    map[string]int
}

func NewTableSchema(name string, columns []Column, primaryKey []string) *TableSchema {
	schema := &TableSchema{
		Name:       name,
		Columns:    columns,
		PrimaryKey: primaryKey,
		columns:    make(map[string]int, len(columns)),
	}
	for idx := range schema.Columns {
		if schema.Columns[idx].DataType == "" {
			schema.Columns[idx].DataType = DataTypeFromDBType(schema.Columns[idx].DBType)
		}
		schema.columns[schema.Columns[idx].Name] = idx
	}
	return schema
}

func (s *TableSchema) HasColumn(name string) bool {
	_, found := s.columns[name]
	return found
}

func (s *TableSchema) Column(name string) (Column, bool) {
	idx, found := s.columns[name]
	if !found {
		return Column{}, false
	}
	return s.Columns[idx], true
}

func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for idx, column := range s.Columns {
		names[idx] = column.Name
	}
	return names
}
