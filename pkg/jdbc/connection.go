package jdbc

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"sync"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"    // registers the mysql dialect
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // registers the postgres dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // registers the sqlite3 dialect
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"github.com/rs/zerolog"
)

// Connection is a pooled database handle shared by a source or a sink.
// Reconnect swaps the pool; callers never hold the underlying *sqlx.DB.
type Connection struct {
	config  *Config
	log     zerolog.Logger
	dialect goqu.DialectWrapper

	mu     sync.RWMutex
	db     *sqlx.DB
	tunnel *utils.SSHTunnel
}

// Open validates config, opens the pool and pings it once.
func Open(ctx context.Context, config *Config, log zerolog.Logger) (*Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	conn := &Connection{
		config:  config,
		log:     log.With().Str("adapter", string(config.Adapter)).Logger(),
		dialect: goqu.Dialect(string(config.Adapter)),
	}
	if err := conn.open(); err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

func (c *Connection) open() error {
	var tunnel *utils.SSHTunnel
	if c.config.SSH != nil {
		var err error
		tunnel, err = c.config.SSH.OpenTunnel()
		if err != nil {
			return fmt.Errorf("%w: %s", constants.ErrConnectivity, err)
		}
	}

	var (
		db  *sql.DB
		err error
	)
	switch c.config.Adapter {
	case constants.Postgres:
		var uri string
		uri, err = c.config.postgresURI()
		if err != nil {
			break
		}
		var pgConfig *pgx.ConnConfig
		pgConfig, err = pgx.ParseConfig(uri)
		if err != nil {
			err = fmt.Errorf("%w: invalid postgres connection string: %s", constants.ErrConfiguration, err)
			break
		}
		if tunnel != nil {
			pgConfig.DialFunc = tunnel.DialContext
		}
		db = stdlib.OpenDB(*pgConfig)
	case constants.MySQL:
		if tunnel != nil {
			mysql.RegisterDialContext(sshDialName, func(ctx context.Context, addr string) (net.Conn, error) {
				return tunnel.DialContext(ctx, "tcp", addr)
			})
		}
		var mysqlConfig *mysql.Config
		mysqlConfig, err = c.config.mysqlConfig(tunnel != nil)
		if err != nil {
			break
		}
		var connector driver.Connector
		connector, err = mysql.NewConnector(mysqlConfig)
		if err != nil {
			err = fmt.Errorf("%w: %s", constants.ErrConfiguration, err)
			break
		}
		db = sql.OpenDB(connector)
	case constants.SQLite:
		db, err = sql.Open("sqlite3", c.config.sqliteDSN())
	default:
		err = fmt.Errorf("%w: unsupported adapter %q", constants.ErrConfiguration, c.config.Adapter)
	}
	if err != nil {
		if tunnel != nil {
			_ = tunnel.Close()
		}
		return err
	}

	db.SetMaxOpenConns(c.config.PoolSize)
	db.SetMaxIdleConns(c.config.PoolSize)

	c.mu.Lock()
	c.db = sqlx.NewDb(db, string(c.config.Adapter))
	c.tunnel = tunnel
	c.mu.Unlock()
	return nil
}

func (c *Connection) Driver() constants.DriverType {
	return c.config.Adapter
}

func (c *Connection) PoolSize() int {
	return c.config.PoolSize
}

func (c *Connection) client() *sqlx.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Ping verifies the pool can reach the database.
func (c *Connection) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultPingTimeout)
	defer cancel()

	if err := c.client().PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %s", constants.ErrConnectivity, err)
	}
	return nil
}

// Reconnect drops the current pool and opens a new one.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.log.Warn().Msg("reconnecting to database")
	if err := c.Close(); err != nil {
		c.log.Debug().Err(err).Msg("closing stale pool")
	}
	if err := c.open(); err != nil {
		return err
	}
	return c.Ping(ctx)
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.db != nil {
		err = c.db.Close()
	}
	if c.tunnel != nil {
		if terr := c.tunnel.Close(); terr != nil && err == nil {
			err = terr
		}
		c.tunnel = nil
	}
	return err
}

// table returns the goqu identifier of a configured table
func (c *Connection) table(name string) exp.IdentifierExpression {
	if c.config.Adapter == constants.Postgres && c.config.Schema != "" {
		return goqu.S(c.config.Schema).Table(name)
	}
	return goqu.T(name)
}

// withTx runs fn inside a transaction that is rolled back on every failing path.
func (c *Connection) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := c.client().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
			c.log.Error().Err(rerr).Msg("transaction rollback failed")
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
