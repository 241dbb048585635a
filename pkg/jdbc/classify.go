package jdbc

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// postgres SQLSTATE classes that recur for the same statement
var pgDeterministicClasses = map[string]struct{}{
	"0A": {}, // feature not supported
	"22": {}, // data exception
	"23": {}, // integrity constraint violation
	"42": {}, // syntax error or access rule violation
}

// mysql server errors that recur for the same statement
var mysqlDeterministicErrors = map[uint16]struct{}{
	1048: {}, // column cannot be null
	1054: {}, // unknown column
	1062: {}, // duplicate entry
	1064: {}, // syntax error
	1136: {}, // column count doesn't match value count
	1146: {}, // table doesn't exist
	1292: {}, // incorrect value
	1364: {}, // field doesn't have a default value
	1366: {}, // incorrect value for column
	1406: {}, // data too long
}

var sqliteDeterministicCodes = map[sqlite3.ErrNo]struct{}{
	sqlite3.ErrError:      {},
	sqlite3.ErrConstraint: {},
	sqlite3.ErrMismatch:   {},
	sqlite3.ErrRange:      {},
	sqlite3.ErrTooBig:     {},
}

// ClassOf tells whether retrying the statement that produced err can succeed.
func ClassOf(err error) utils.ErrorClass {
	if err == nil {
		return utils.Transient
	}

	var classified *utils.ClassifiedError
	if errors.As(err, &classified) {
		return classified.Class
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn), errors.Is(err, constants.ErrConnectivity):
		return utils.Transient
	case errors.Is(err, constants.ErrSchema), errors.Is(err, constants.ErrConfiguration):
		return utils.Deterministic
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		if _, found := pgDeterministicClasses[pgErr.Code[:2]]; found {
			return utils.Deterministic
		}
		return utils.Transient
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if _, found := mysqlDeterministicErrors[mysqlErr.Number]; found {
			return utils.Deterministic
		}
		return utils.Transient
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if _, found := sqliteDeterministicCodes[sqliteErr.Code]; found {
			return utils.Deterministic
		}
		return utils.Transient
	}

	return utils.Transient
}

// Classify attaches the class of err to it.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	return utils.Classify(ClassOf(err), err)
}
