package jdbc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/datazip-inc/sqlstream/types"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/jmoiron/sqlx"
)

// keeps every statement below the bind parameter limit of all supported drivers
const maxBindParams = 30000

var errEmptyRow = errors.New("row has no columns")

// rowGroup is a run of rows sharing the same column set
type rowGroup struct {
	columns []string
	rows    []types.Row
}

// groupByShape splits rows by their column set, in order of first appearance.
func groupByShape(rows []types.Row) ([]*rowGroup, error) {
	var groups []*rowGroup
	index := make(map[string]*rowGroup)
	for _, row := range rows {
		if len(row) == 0 {
			return nil, errEmptyRow
		}
		columns := make([]string, 0, len(row))
		for column := range row {
			columns = append(columns, column)
		}
		slices.Sort(columns)

		key := strings.Join(columns, "\x00")
		group, found := index[key]
		if !found {
			group = &rowGroup{columns: columns}
			index[key] = group
			groups = append(groups, group)
		}
		group.rows = append(group.rows, row)
	}
	return groups, nil
}

// BuildInsert returns the multi-row INSERT statements for rows.
func (c *Connection) BuildInsert(table string, rows []types.Row) ([]string, [][]any, error) {
	groups, err := groupByShape(rows)
	if err != nil {
		return nil, nil, err
	}

	var (
		queries []string
		args    [][]any
	)
	for _, group := range groups {
		cols := make([]any, len(group.columns))
		for idx, column := range group.columns {
			cols[idx] = column
		}
		chunk := max(maxBindParams/len(group.columns), 1)

		for start := 0; start < len(group.rows); start += chunk {
			end := min(start+chunk, len(group.rows))
			vals := make([][]any, 0, end-start)
			for _, row := range group.rows[start:end] {
				val := make([]any, len(group.columns))
				for idx, column := range group.columns {
					val[idx] = row[column].Interface()
				}
				vals = append(vals, val)
			}

			query, queryArgs, err := c.dialect.Insert(c.table(table)).
				Cols(cols...).
				Vals(vals...).
				Prepared(true).
				ToSQL()
			if err != nil {
				return nil, nil, err
			}
			queries = append(queries, query)
			args = append(args, queryArgs)
		}
	}
	return queries, args, nil
}

// InsertRows inserts rows into table in one transaction. The returned error is
// classified as deterministic or transient.
func (c *Connection) InsertRows(ctx context.Context, table string, rows []types.Row) error {
	if len(rows) == 0 {
		return nil
	}

	queries, args, err := c.BuildInsert(table, rows)
	if err != nil {
		return utils.Classify(utils.Deterministic, fmt.Errorf("failed to build insert for table[%s]: %w", table, err))
	}

	err = c.withTx(ctx, func(tx *sqlx.Tx) error {
		for idx, query := range queries {
			if _, err := tx.ExecContext(ctx, query, args[idx]...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Classify(fmt.Errorf("failed to insert %d rows into table[%s]: %w", len(rows), table, err))
	}
	return nil
}
