package jdbc

import (
	"fmt"
	"strings"

	"github.com/datazip-inc/sqlstream/constants"
)

// PostgresTableSchemaQuery returns the columns of a table in ordinal order
func PostgresTableSchemaQuery() string {
	return `
		SELECT
			column_name,
			data_type,
			is_nullable = 'YES' AS nullable
		FROM
			information_schema.columns
		WHERE
			table_schema = $1 AND table_name = $2
		ORDER BY
			ordinal_position
	`
}

// PostgresPrimaryKeyQuery returns the primary key columns of a table in key order
func PostgresPrimaryKeyQuery() string {
	return `
		SELECT
			kcu.column_name
		FROM
			information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
				AND tc.table_name = kcu.table_name
		WHERE
			tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY
			kcu.ordinal_position
	`
}

// MySQLTableSchemaQuery returns the columns of a table in ordinal order
func MySQLTableSchemaQuery() string {
	return `
		SELECT
			COLUMN_NAME,
			COLUMN_TYPE,
			IS_NULLABLE = 'YES' AS nullable
		FROM
			INFORMATION_SCHEMA.COLUMNS
		WHERE
			TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY
			ORDINAL_POSITION
	`
}

// MySQLPrimaryKeyQuery returns the primary key columns of a table in key order
func MySQLPrimaryKeyQuery() string {
	return `
		SELECT
			COLUMN_NAME
		FROM
			INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE
			TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY
			ORDINAL_POSITION
	`
}

// SQLiteTableInfoQuery returns the pragma listing the columns of table
func SQLiteTableInfoQuery(table string) string {
	return fmt.Sprintf("PRAGMA table_info(%s)", QuoteIdentifier(table, constants.SQLite))
}

// QuoteIdentifier returns the properly quoted identifier based on database driver
func QuoteIdentifier(identifier string, driver constants.DriverType) string {
	switch driver {
	case constants.MySQL:
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
	}
}

// Flavor tells MariaDB apart from MySQL by its version string
func Flavor(driver constants.DriverType, version string) string {
	if driver == constants.MySQL && strings.Contains(strings.ToUpper(version), "MARIADB") {
		return "mariadb"
	}
	return string(driver)
}
