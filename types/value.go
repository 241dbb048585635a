package types

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Kind enumerates the variants of Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single column value: Null, Int, Float, Text or Timestamp.
// The zero Value is Null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	t    time.Time
}

func Null() Value                    { return Value{} }
func Int(v int64) Value              { return Value{kind: KindInt, i: v} }
func Float(v float64) Value          { return Value{kind: KindFloat, f: v} }
func Text(v string) Value            { return Value{kind: KindText, s: v} }
func Timestamp(v time.Time) Value    { return Value{kind: KindTimestamp, t: v} }
func (v Value) Kind() Kind           { return v.kind }
func (v Value) IsNull() bool         { return v.kind == KindNull }
func (v Value) Int() int64           { return v.i }
func (v Value) Float() float64       { return v.f }
func (v Value) Text() string         { return v.s }
func (v Value) Timestamp() time.Time { return v.t }

// NewValue converts a value produced by a database driver or a JSON decoder
// into a Value. Unsupported types return an error.
func NewValue(raw any) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return val, nil
	case *Value:
		if val == nil {
			return Null(), nil
		}
		return *val, nil
	case int:
		return Int(int64(val)), nil
	case int8:
		return Int(int64(val)), nil
	case int16:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(int64(val)), nil
	case uint16:
		return Int(int64(val)), nil
	case uint32:
		return Int(int64(val)), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return Null(), fmt.Errorf("unsigned value %d overflows int64", val)
		}
		return Int(int64(val)), nil
	case uint64:
		if val > math.MaxInt64 {
			return Null(), fmt.Errorf("unsigned value %d overflows int64", val)
		}
		return Int(int64(val)), nil
	case float32:
		return Float(float64(val)), nil
	case float64:
		return Float(val), nil
	case bool:
		if val {
			return Int(1), nil
		}
		return Int(0), nil
	case string:
		return Text(val), nil
	case []byte:
		return Text(string(val)), nil
	case time.Time:
		return Timestamp(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %s", val, err)
		}
		return Float(f), nil
	case map[string]any, []any:
		// nested documents are stored as their JSON text
		encoded, err := json.Marshal(val)
		if err != nil {
			return Null(), fmt.Errorf("failed to encode nested value: %s", err)
		}
		return Text(string(encoded)), nil
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return Null(), fmt.Errorf("failed to read driver value: %s", err)
		}
		if _, nested := inner.(driver.Valuer); nested {
			return Null(), fmt.Errorf("unsupported driver value of type %T", raw)
		}
		return NewValue(inner)
	case fmt.Stringer:
		return Text(val.String()), nil
	default:
		return Null(), fmt.Errorf("unsupported value of type %T", raw)
	}
}

// Interface returns the Go value handed to database drivers as a query argument.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	case KindTimestamp:
		return v.t
	default:
		return nil
	}
}

// Compare returns -1, 0 or 1. Int and Float compare numerically with each
// other; any other mix of kinds is an error. Null sorts before everything.
func (v Value) Compare(other Value) (int, error) {
	if v.kind == KindNull || other.kind == KindNull {
		switch {
		case v.kind == other.kind:
			return 0, nil
		case v.kind == KindNull:
			return -1, nil
		default:
			return 1, nil
		}
	}

	switch {
	case v.kind == KindInt && other.kind == KindInt:
		return compareOrdered(v.i, other.i), nil
	case v.isNumeric() && other.isNumeric():
		return compareOrdered(v.asFloat(), other.asFloat()), nil
	case v.kind == KindText && other.kind == KindText:
		return strings.Compare(v.s, other.s), nil
	case v.kind == KindTimestamp && other.kind == KindTimestamp:
		return v.t.Compare(other.t), nil
	default:
		return 0, fmt.Errorf("cannot compare %s with %s", v.kind, other.kind)
	}
}

// Equal reports whether both values have the same kind and content.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	cmp, err := v.Compare(other)
	return err == nil && cmp == 0
}

func (v Value) isNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat
}

func (v Value) asFloat() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String renders the value as plain text, the way it is substituted into
// templates and derived tags.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindText:
		return v.s
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return json.Marshal(strconv.FormatFloat(v.f, 'f', -1, 64))
		}
		return json.Marshal(v.f)
	case KindText:
		return json.Marshal(v.s)
	case KindTimestamp:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes numbers as Int when integral and strings as Text.
// Strings are never guessed as timestamps; callers that know the column type
// convert them with typeutils.Coerce.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	parsed, err := NewValue(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
