package types

import (
	"strings"
)

// DataType is the coarse classification of a database column type, used to
// coerce values read back from a checkpoint document to the column's kind.
type DataType string

const (
	NULL      DataType = "null"
	INT64     DataType = "integer"
	FLOAT64   DataType = "number"
	STRING    DataType = "string"
	BOOL      DataType = "boolean"
	TIMESTAMP DataType = "timestamp"
	UNKNOWN   DataType = "unknown"
)

// order matters: "timestamp" must be checked before "time" and "int" after "interval"
var dbTypeToDataType = []struct {
	prefix   string
	dataType DataType
}{
	{"timestamp", TIMESTAMP},
	{"datetime", TIMESTAMP},
	{"date", TIMESTAMP},
	{"interval", STRING},
	{"bigint", INT64},
	{"smallint", INT64},
	{"tinyint(1)", BOOL},
	{"tinyint", INT64},
	{"mediumint", INT64},
	{"integer", INT64},
	{"int", INT64},
	{"serial", INT64},
	{"bigserial", INT64},
	{"double", FLOAT64},
	{"float", FLOAT64},
	{"real", FLOAT64},
	{"numeric", FLOAT64},
	{"decimal", FLOAT64},
	{"bool", BOOL},
	{"char", STRING},
	{"varchar", STRING},
	{"character", STRING},
	{"text", STRING},
	{"uuid", STRING},
	{"json", STRING},
	{"enum", STRING},
	{"time", STRING},
}

// DataTypeFromDBType maps a database type name (as reported by the
// information schema or by SQLite's declared type) to a DataType.
func DataTypeFromDBType(dbType string) DataType {
	normalized := strings.ToLower(strings.TrimSpace(dbType))
	if normalized == "" {
		return UNKNOWN
	}
	for _, mapping := range dbTypeToDataType {
		if strings.HasPrefix(normalized, mapping.prefix) {
			return mapping.dataType
		}
	}
	return UNKNOWN
}
