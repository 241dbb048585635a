package constants

import (
	"errors"
	"time"
)

const (
	DefaultSelectInterval = 60 * time.Second
	DefaultSelectLimit    = 500
	DefaultPoolSize       = 1
	DefaultFlushWorkers   = 1
	DefaultRowRetries     = 3
	DefaultMaxRetries     = 5
	DefaultRetryWait      = time.Second
	DefaultRowRetryWait   = 200 * time.Millisecond
	MaxRowRetryWait       = 5 * time.Second
	DefaultBatchSize      = 1000
	DefaultFlushInterval  = 5 * time.Second
	DefaultPingTimeout    = 10 * time.Second
	DefaultConsumerGroup  = "sqlstream"

	// LastRecordsKey is the top-level key of the checkpoint document.
	LastRecordsKey = "last_records"
	// BatchIDHeader carries the id of an emitted batch on each transport message.
	BatchIDHeader = "batch_id"
	EnvPrefix     = "SQLSTREAM"
)

type DriverType string

const (
	Postgres DriverType = "postgres"
	MySQL    DriverType = "mysql"
	SQLite   DriverType = "sqlite3"
)

type StateType string

const (
	FileState   StateType = "file"
	MemoryState StateType = "memory"
	S3State     StateType = "s3"
)

var (
	// ErrConfiguration is fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrSchema marks a table or column that does not exist; retrying cannot fix it.
	ErrSchema = errors.New("schema error")
	// ErrConnectivity marks a database that could not be reached.
	ErrConnectivity = errors.New("connectivity error")
	// ErrStateIO marks a checkpoint that could not be persisted.
	ErrStateIO = errors.New("checkpoint io error")
)
