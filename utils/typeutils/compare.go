package typeutils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/datazip-inc/sqlstream/types"
)

// IsAdvance reports whether next may replace prev as a watermark: next must
// not sort before prev. A nil prev accepts anything.
func IsAdvance(prev *types.Value, next types.Value) (bool, error) {
	if prev == nil {
		return true, nil
	}
	cmp, err := next.Compare(*prev)
	if err != nil {
		return false, err
	}
	return cmp >= 0, nil
}

// Coerce converts a value read back from a checkpoint document (where type
// information is lost) to the kind matching the column's data type.
func Coerce(value types.Value, dataType types.DataType) (types.Value, error) {
	if value.IsNull() {
		return value, nil
	}

	switch dataType {
	case types.TIMESTAMP:
		switch value.Kind() {
		case types.KindTimestamp:
			return value, nil
		case types.KindText:
			parsed, err := ParseTimestamp(value.Text())
			if err != nil {
				return types.Null(), err
			}
			return types.Timestamp(parsed), nil
		case types.KindInt, types.KindFloat:
			parsed, err := EventTime(value)
			if err != nil {
				return types.Null(), err
			}
			return types.Timestamp(parsed), nil
		}
	case types.INT64, types.BOOL:
		switch value.Kind() {
		case types.KindInt:
			return value, nil
		case types.KindFloat:
			if value.Float() != math.Trunc(value.Float()) {
				return types.Null(), fmt.Errorf("value %v is not integral", value.Float())
			}
			return types.Int(int64(value.Float())), nil
		case types.KindText:
			parsed, err := strconv.ParseInt(strings.TrimSpace(value.Text()), 10, 64)
			if err != nil {
				return types.Null(), fmt.Errorf("failed to parse %q as integer: %s", value.Text(), err)
			}
			return types.Int(parsed), nil
		}
	case types.FLOAT64:
		switch value.Kind() {
		case types.KindInt, types.KindFloat:
			return value, nil
		case types.KindText:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(value.Text()), 64)
			if err != nil {
				return types.Null(), fmt.Errorf("failed to parse %q as number: %s", value.Text(), err)
			}
			return types.Float(parsed), nil
		}
	case types.STRING:
		switch value.Kind() {
		case types.KindText:
			return value, nil
		case types.KindTimestamp:
			return types.Text(value.Timestamp().Format(time.RFC3339Nano)), nil
		default:
			return types.Text(value.String()), nil
		}
	default:
		return value, nil
	}
	return types.Null(), fmt.Errorf("cannot convert %s value to %s", value.Kind(), dataType)
}
