package jdbc

import (
	"context"
	"fmt"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/types"
)

// DiscoverTable reads the columns and primary key of table. A table without
// columns does not exist and yields constants.ErrSchema.
func (c *Connection) DiscoverTable(ctx context.Context, table string) (*types.TableSchema, error) {
	var (
		columns    []types.Column
		primaryKey []string
		err        error
	)

	switch c.config.Adapter {
	case constants.Postgres:
		columns, primaryKey, err = c.discoverPostgres(ctx, table)
	case constants.MySQL:
		columns, primaryKey, err = c.discoverMySQL(ctx, table)
	case constants.SQLite:
		columns, primaryKey, err = c.discoverSQLite(ctx, table)
	default:
		err = fmt.Errorf("%w: unsupported adapter %q", constants.ErrConfiguration, c.config.Adapter)
	}
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to discover table[%s]: %w", table, err))
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: table[%s] does not exist", constants.ErrSchema, table)
	}

	return types.NewTableSchema(table, columns, primaryKey), nil
}

func (c *Connection) discoverPostgres(ctx context.Context, table string) ([]types.Column, []string, error) {
	var columns []types.Column
	rows, err := c.client().QueryxContext(ctx, PostgresTableSchemaQuery(), c.config.Schema, table)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var column types.Column
		if err := rows.Scan(&column.Name, &column.DBType, &column.Nullable); err != nil {
			return nil, nil, err
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var primaryKey []string
	if err := c.client().SelectContext(ctx, &primaryKey, PostgresPrimaryKeyQuery(), c.config.Schema, table); err != nil {
		return nil, nil, err
	}
	return columns, primaryKey, nil
}

func (c *Connection) discoverMySQL(ctx context.Context, table string) ([]types.Column, []string, error) {
	rows, err := c.client().QueryxContext(ctx, MySQLTableSchemaQuery(), table)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var columns []types.Column
	for rows.Next() {
		var column types.Column
		if err := rows.Scan(&column.Name, &column.DBType, &column.Nullable); err != nil {
			return nil, nil, err
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var primaryKey []string
	if err := c.client().SelectContext(ctx, &primaryKey, MySQLPrimaryKeyQuery(), table); err != nil {
		return nil, nil, err
	}
	return columns, primaryKey, nil
}

func (c *Connection) discoverSQLite(ctx context.Context, table string) ([]types.Column, []string, error) {
	var info []struct {
		CID          int     `db:"cid"`
		Name         string  `db:"name"`
		Type         string  `db:"type"`
		NotNull      bool    `db:"notnull"`
		DefaultValue *string `db:"dflt_value"`
		PK           int     `db:"pk"`
	}
	if err := c.client().SelectContext(ctx, &info, SQLiteTableInfoQuery(table)); err != nil {
		return nil, nil, err
	}

	columns := make([]types.Column, 0, len(info))
	keyed := make(map[int]string)
	for _, one := range info {
		columns = append(columns, types.Column{Name: one.Name, DBType: one.Type, Nullable: !one.NotNull})
		if one.PK > 0 {
			keyed[one.PK] = one.Name
		}
	}

	// pk holds the 1-based position within the key
	primaryKey := make([]string, 0, len(keyed))
	for pos := 1; pos <= len(keyed); pos++ {
		primaryKey = append(primaryKey, keyed[pos])
	}
	return columns, primaryKey, nil
}

// ServerVersion returns the version string reported by the database
func (c *Connection) ServerVersion(ctx context.Context) (string, error) {
	var query string
	switch c.config.Adapter {
	case constants.Postgres:
		query = "SHOW server_version"
	case constants.MySQL:
		query = "SELECT @@version"
	default:
		query = "SELECT sqlite_version()"
	}

	var version string
	if err := c.client().QueryRowContext(ctx, query).Scan(&version); err != nil {
		return "", fmt.Errorf("failed to get server version: %s", err)
	}
	return version, nil
}
