package types

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValue(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		input    any
		expected Value
		wantErr  bool
	}{
		{"nil", nil, Null(), false},
		{"int32", int32(7), Int(7), false},
		{"uint16", uint16(7), Int(7), false},
		{"uint64_overflow", uint64(1 << 63), Null(), true},
		{"float32", float32(1.5), Float(1.5), false},
		{"bool_true", true, Int(1), false},
		{"bool_false", false, Int(0), false},
		{"bytes", []byte("abc"), Text("abc"), false},
		{"string", "abc", Text("abc"), false},
		{"time", ts, Timestamp(ts), false},
		{"json_int", json.Number("12"), Int(12), false},
		{"json_float", json.Number("1.25"), Float(1.25), false},
		{"nested_map", map[string]any{"a": 1}, Text(`{"a":1}`), false},
		{"unsupported", struct{}{}, Null(), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewValue(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.expected.Equal(got), "expected %v got %v", tc.expected, got)
		})
	}
}

func TestValueCompare(t *testing.T) {
	cmp, err := Int(1).Compare(Int(2))
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = Float(2.5).Compare(Int(2))
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	cmp, err = Null().Compare(Text("a"))
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	_, err = Text("1").Compare(Int(1))
	assert.Error(t, err)

	assert.False(t, Int(1).Equal(Float(1)))
}

func TestValueJSON(t *testing.T) {
	ts := time.Date(2024, 3, 4, 5, 6, 7, 890, time.UTC)
	row := Row{
		"id":      Int(42),
		"ratio":   Float(0.5),
		"message": Text("hello"),
		"at":      Timestamp(ts),
		"gone":    Null(),
	}

	encoded, err := json.Marshal(row)
	require.NoError(t, err)

	var decoded Row
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	assert.Equal(t, KindInt, decoded["id"].Kind())
	assert.Equal(t, int64(42), decoded["id"].Int())
	assert.Equal(t, KindFloat, decoded["ratio"].Kind())
	assert.Equal(t, "hello", decoded["message"].Text())
	// timestamps come back as their exact text
	assert.Equal(t, KindText, decoded["at"].Kind())
	assert.Equal(t, ts.Format(time.RFC3339Nano), decoded["at"].Text())
	assert.True(t, decoded["gone"].IsNull())
}

func TestValueJSONKeepsTimestampLikeText(t *testing.T) {
	for _, text := range []string{"2024-01-01T10:00:00.100Z", "2024-01-01T10:00:00Z", "2024-01-01 10:00:00"} {
		var decoded Value
		encoded, err := json.Marshal(Text(text))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(encoded, &decoded))
		assert.Equal(t, KindText, decoded.Kind(), text)
		assert.Equal(t, text, decoded.Text())
	}
}

func TestEventRoundTrip(t *testing.T) {
	ts := time.Date(2011, 1, 2, 13, 14, 15, 0, time.UTC)
	event := Event{Tag: "db.logs", Time: ts, Record: Row{"message": Text("message1")}}

	data, err := event.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, "db.logs", decoded.Tag)
	assert.True(t, ts.Equal(decoded.Time))
	assert.Equal(t, "message1", decoded.Record["message"].Text())

	_, err = UnmarshalEvent([]byte(`{"time":"2011-01-02T13:14:15Z","record":{}}`))
	assert.Error(t, err)
}

func TestDataTypeFromDBType(t *testing.T) {
	cases := map[string]DataType{
		"timestamp without time zone": TIMESTAMP,
		"DATETIME":                    TIMESTAMP,
		"integer":                     INT64,
		"bigint":                      INT64,
		"INTEGER":                     INT64,
		"character varying":           STRING,
		"varchar(255)":                STRING,
		"double precision":            FLOAT64,
		"tinyint(1)":                  BOOL,
		"boolean":                     BOOL,
		"":                            UNKNOWN,
		"geometry":                    UNKNOWN,
	}
	for dbType, expected := range cases {
		assert.Equal(t, expected, DataTypeFromDBType(dbType), dbType)
	}
}
