package jdbc

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/datazip-inc/sqlstream/types"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/datazip-inc/sqlstream/utils/typeutils"
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// RangeRequest selects rows of Table ordered by Column, strictly after After.
type RangeRequest struct {
	Table  string
	Column string
	// After is the last seen watermark; nil scans from the beginning
	After *types.Value
	// Limit of 0 means unbounded
	Limit int
	// Where is an extra SQL condition AND-ed into the filter
	Where string
}

// ScannedRow is one result row. Err is set when a column value could not be
// converted; Row then holds the columns that did convert.
type ScannedRow struct {
	Row types.Row
	Err error
}

// BuildRangeQuery returns the prepared statement and arguments for req.
func (c *Connection) BuildRangeQuery(req RangeRequest) (string, []any, error) {
	var filters []exp.Expression
	if req.After != nil && !req.After.IsNull() {
		filters = append(filters, goqu.C(req.Column).Gt(req.After.Interface()))
	}
	if req.Where != "" {
		filters = append(filters, goqu.L("("+req.Where+")"))
	}

	ds := c.dialect.From(c.table(req.Table)).
		Where(filters...).
		Order(goqu.C(req.Column).Asc()).
		Prepared(true)
	if req.Limit > 0 {
		ds = ds.Limit(uint(req.Limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build range query for table[%s]: %s", req.Table, err)
	}
	return query, args, nil
}

// RangeQuery runs the incremental range query and returns rows in watermark order.
func (c *Connection) RangeQuery(ctx context.Context, req RangeRequest) ([]ScannedRow, error) {
	query, args, err := c.BuildRangeQuery(req)
	if err != nil {
		return nil, utils.Classify(utils.Deterministic, err)
	}

	rows, err := c.client().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to query table[%s]: %w", req.Table, err))
	}
	defer rows.Close()

	columns, err := rows.ColumnTypes()
	if err != nil {
		return nil, Classify(err)
	}

	var result []ScannedRow
	for rows.Next() {
		scanned, err := scanRow(rows, columns)
		if err != nil {
			return nil, Classify(fmt.Errorf("failed to scan row of table[%s]: %w", req.Table, err))
		}
		result = append(result, scanned)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(fmt.Errorf("failed to iterate table[%s]: %w", req.Table, err))
	}

	return result, nil
}

// scanRow reports a conversion failure on the returned row and a driver failure as err.
func scanRow(rows *sql.Rows, columns []*sql.ColumnType) (ScannedRow, error) {
	scanValues := make([]any, len(columns))
	for i := range scanValues {
		scanValues[i] = new(any)
	}
	if err := rows.Scan(scanValues...); err != nil {
		return ScannedRow{}, err
	}

	row := make(types.Row, len(columns))
	var rowErr error
	for i, column := range columns {
		raw := *(scanValues[i].(*any))
		value, err := normalizeValue(raw, column.DatabaseTypeName())
		if err != nil {
			if rowErr == nil {
				rowErr = fmt.Errorf("column[%s]: %s", column.Name(), err)
			}
			continue
		}
		row[column.Name()] = value
	}
	return ScannedRow{Row: row, Err: rowErr}, nil
}

// normalizeValue converts a driver value. Drivers that return numbers and
// timestamps as text are coerced by the declared column type, keeping the text
// when it does not parse.
func normalizeValue(raw any, dbType string) (types.Value, error) {
	value, err := types.NewValue(raw)
	if err != nil {
		return types.Null(), err
	}
	if value.Kind() != types.KindText {
		return value, nil
	}

	switch dataType := types.DataTypeFromDBType(dbType); dataType {
	case types.INT64, types.FLOAT64, types.TIMESTAMP:
		if coerced, err := typeutils.Coerce(value, dataType); err == nil {
			return coerced, nil
		}
	}
	return value, nil
}
