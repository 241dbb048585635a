package jdbc

import (
	"fmt"
	"maps"
	"net/url"
	"strings"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/go-sql-driver/mysql"
)

// sshDialName is the go-sql-driver network name registered for ssh tunnels
const sshDialName = "sqlstream+ssh"

// Config describes one database connection pool.
type Config struct {
	Adapter  constants.DriverType `mapstructure:"adapter" json:"adapter" validate:"required,oneof=postgres mysql sqlite3"`
	Host     string               `mapstructure:"host" json:"host,omitempty"`
	Port     int                  `mapstructure:"port" json:"port,omitempty" validate:"gte=0,lte=65535"`
	Database string               `mapstructure:"database" json:"database,omitempty"`
	Username string               `mapstructure:"username" json:"username,omitempty"`
	Password string               `mapstructure:"password" json:"password,omitempty"`
	// Schema is the postgres namespace of the configured tables, "public" by default
	Schema string            `mapstructure:"schema" json:"schema,omitempty"`
	Params map[string]string `mapstructure:"params" json:"params,omitempty"`
	// DSN, when set, is passed to the driver as is
	DSN      string           `mapstructure:"dsn" json:"dsn,omitempty"`
	PoolSize int              `mapstructure:"pool_size" json:"pool_size,omitempty" validate:"gte=0"`
	SSL      *utils.SSLConfig `mapstructure:"ssl" json:"ssl,omitempty"`
	SSH      *utils.SSHConfig `mapstructure:"ssh" json:"ssh,omitempty"`
}

func (c *Config) Validate() error {
	if err := utils.Validate(c); err != nil {
		return err
	}

	if c.DSN == "" {
		switch c.Adapter {
		case constants.SQLite:
			if c.Database == "" {
				return fmt.Errorf("%w: sqlite3 requires 'database' (file path) or 'dsn'", constants.ErrConfiguration)
			}
		default:
			if c.Host == "" {
				return fmt.Errorf("%w: empty host name", constants.ErrConfiguration)
			} else if strings.Contains(c.Host, "http") {
				return fmt.Errorf("%w: host should not contain http or https", constants.ErrConfiguration)
			}
			if c.Database == "" {
				return fmt.Errorf("%w: 'database' is required for %s", constants.ErrConfiguration, c.Adapter)
			}
		}
	}

	if c.SSL != nil {
		if err := c.SSL.Validate(); err != nil {
			return fmt.Errorf("%w: %s", constants.ErrConfiguration, err)
		}
	}
	if c.SSH != nil {
		if c.Adapter == constants.SQLite {
			return fmt.Errorf("%w: ssh tunnel is not supported for sqlite3", constants.ErrConfiguration)
		}
		if err := c.SSH.Validate(); err != nil {
			return fmt.Errorf("%w: %s", constants.ErrConfiguration, err)
		}
	}

	if c.PoolSize <= 0 {
		c.PoolSize = constants.DefaultPoolSize
	}
	if c.Adapter == constants.Postgres && c.Schema == "" {
		c.Schema = "public"
	}

	return nil
}

// postgresURI builds the pgx connection string
func (c *Config) postgresURI() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}

	connURL := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, port),
		Path:   "/" + c.Database,
	}

	query := connURL.Query()
	sslParams, err := c.SSL.PostgresParams()
	if err != nil {
		return "", err
	}
	for key, value := range sslParams {
		query.Set(key, value)
	}
	for key, value := range c.Params {
		query.Set(key, value)
	}
	connURL.RawQuery = query.Encode()

	return connURL.String(), nil
}

// mysqlConfig builds the go-sql-driver configuration
func (c *Config) mysqlConfig(tunneled bool) (*mysql.Config, error) {
	if c.DSN != "" {
		cfg, err := mysql.ParseDSN(c.DSN)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid mysql dsn: %s", constants.ErrConfiguration, err)
		}
		cfg.ParseTime = true
		return cfg, nil
	}

	port := c.Port
	if port == 0 {
		port = 3306
	}

	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	if tunneled {
		cfg.Net = sshDialName
	}
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, port)
	cfg.DBName = c.Database
	cfg.AllowNativePasswords = true
	cfg.ParseTime = true
	cfg.TLSConfig = c.SSL.MySQLTLS()
	if len(c.Params) > 0 {
		cfg.Params = make(map[string]string, len(c.Params))
		maps.Copy(cfg.Params, c.Params)
	}

	return cfg, nil
}

// sqliteDSN returns the go-sqlite3 data source name
func (c *Config) sqliteDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	if len(c.Params) == 0 {
		return c.Database
	}
	query := url.Values{}
	for key, value := range c.Params {
		query.Set(key, value)
	}
	return "file:" + c.Database + "?" + query.Encode()
}
