package template

import (
	"testing"
	"time"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	ctx := Context{
		Time:     time.Date(2011, 1, 2, 13, 14, 15, 0, time.UTC),
		Hostname: "db-01",
		Tag:      "db.logs",
		Record:   types.Row{"message": types.Text("hello"), "id": types.Int(3)},
		LastValues: types.Row{
			"updated_at": types.Timestamp(time.Date(2011, 1, 2, 13, 14, 15, 0, time.UTC)),
			"id":         types.Int(41),
		},
	}

	testCases := []struct {
		template string
		expected string
	}{
		{"plain text", "plain text"},
		{"100%%", "100%"},
		{"%Y-%m-%d %H:%M:%S", "2011-01-02 13:14:15"},
		{"host=%{hostname}", "host=db-01"},
		{"%{tag}", "db.logs"},
		{"%{time}", "2011-01-02T13:14:15Z"},
		{"%{record(message)}", "hello"},
		{"%{record('id')}", "3"},
		{"%{record(missing)}", ""},
		{"id > %{last_value(id)}", "id > 41"},
		{"updated_at > '%{last_value:updated_at}'", "updated_at > '2011-01-02 13:14:15'"},
		{"%{ json }", `{"id":3,"message":"hello"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.template, func(t *testing.T) {
			tmpl, err := Compile(tc.template)
			require.NoError(t, err)
			out, err := tmpl.Render(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out)
			assert.Equal(t, tc.template, tmpl.String())
		})
	}
}

func TestCompileErrors(t *testing.T) {
	invalid := []string{
		"trailing %",
		"%!",
		"%{hostname",
		"%{unknown}",
		"%{record}",
		"%{hostname(x)}",
		"%{record(x}",
		"%0",
		"%_",
	}
	for _, s := range invalid {
		t.Run(s, func(t *testing.T) {
			_, err := Compile(s)
			assert.ErrorIs(t, err, constants.ErrConfiguration)
		})
	}

	assert.Panics(t, func() { MustCompile("%{nope}") })
}
