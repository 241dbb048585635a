package destination

import (
	"fmt"
	"maps"
	"strings"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/types"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/gobwas/glob"
)

type columnMapping struct {
	field  string
	column string
}

// Table is a resolved destination table.
type Table struct {
	Name    string
	pattern glob.Glob
	source  string
	mapping []columnMapping
	retries int
}

func NewTable(config TableConfig) (*Table, error) {
	table := &Table{Name: config.Table, source: config.Pattern, retries: config.NumRetries}
	if table.retries == 0 {
		table.retries = constants.DefaultRowRetries
	}

	if config.Pattern != "" {
		compiled, err := glob.Compile(config.Pattern, '.')
		if err != nil {
			return nil, fmt.Errorf("%w: table[%s] pattern %q: %s", constants.ErrConfiguration, config.Table, config.Pattern, err)
		}
		table.pattern = compiled
	}

	seen := make(map[string]bool)
	for _, item := range utils.SplitAndTrim(config.ColumnMapping, ",") {
		field, column, found := strings.Cut(item, ":")
		field, column = strings.TrimSpace(field), strings.TrimSpace(column)
		if !found {
			column = field
		}
		if field == "" || column == "" {
			return nil, fmt.Errorf("%w: table[%s] has an invalid column mapping %q", constants.ErrConfiguration, config.Table, item)
		}
		if seen[column] {
			return nil, fmt.Errorf("%w: table[%s] maps column[%s] twice", constants.ErrConfiguration, config.Table, column)
		}
		seen[column] = true
		table.mapping = append(table.mapping, columnMapping{field: field, column: column})
	}
	return table, nil
}

// IsDefault reports whether the table has no pattern.
func (t *Table) IsDefault() bool {
	return t.pattern == nil
}

func (t *Table) Pattern() string {
	return t.source
}

// Map converts a record to a destination row. Unmapped fields are dropped; a
// record left without any column fails.
func (t *Table) Map(record types.Record) (types.Row, error) {
	var row types.Row
	if len(t.mapping) == 0 {
		row = maps.Clone(record.Fields)
	} else {
		row = make(types.Row, len(t.mapping))
		for _, m := range t.mapping {
			if value, found := record.Fields[m.field]; found {
				row[m.column] = value
			}
		}
	}
	if len(row) == 0 {
		return nil, fmt.Errorf("record has no field mapped to table[%s]", t.Name)
	}
	return row, nil
}

// Router picks the destination table of a tag.
type Router struct {
	prefix   string
	tables   []*Table
	fallback *Table
}

// NewRouter requires exactly one table without a pattern.
func NewRouter(removeTagPrefix string, tables []*Table) (*Router, error) {
	router := &Router{prefix: removeTagPrefix}
	for _, table := range tables {
		if !table.IsDefault() {
			router.tables = append(router.tables, table)
			continue
		}
		if router.fallback != nil {
			return nil, fmt.Errorf("%w: tables[%s] and [%s] both have no pattern, only one default table is allowed", constants.ErrConfiguration, router.fallback.Name, table.Name)
		}
		router.fallback = table
	}
	if router.fallback == nil {
		return nil, fmt.Errorf("%w: a default table without pattern is required", constants.ErrConfiguration)
	}
	return router, nil
}

// BuildRouter resolves every configured table.
func BuildRouter(config *Config) (*Router, error) {
	tables := make([]*Table, 0, len(config.Tables))
	for _, tableConfig := range config.Tables {
		table, err := NewTable(tableConfig)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return NewRouter(config.RemoveTagPrefix, tables)
}

// Route strips the configured prefix and returns the first table whose
// pattern matches, or the default table.
func (r *Router) Route(tag string) *Table {
	tag = r.strip(tag)
	for _, table := range r.tables {
		if table.pattern.Match(tag) {
			return table
		}
	}
	return r.fallback
}

func (r *Router) strip(tag string) string {
	if r.prefix == "" {
		return tag
	}
	stripped, found := strings.CutPrefix(tag, r.prefix)
	if !found {
		return tag
	}
	return strings.TrimPrefix(stripped, ".")
}

// Tables returns every table, the default last.
func (r *Router) Tables() []*Table {
	return append(append([]*Table{}, r.tables...), r.fallback)
}
