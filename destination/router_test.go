package destination

import (
	"testing"
	"time"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTable(t *testing.T, config TableConfig) *Table {
	t.Helper()
	table, err := NewTable(config)
	require.NoError(t, err)
	return table
}

func TestRouter(t *testing.T) {
	router, err := NewRouter("db", []*Table{
		mustTable(t, TableConfig{Table: "access", Pattern: "web.access"}),
		mustTable(t, TableConfig{Table: "logs"}),
		mustTable(t, TableConfig{Table: "web", Pattern: "web.*"}),
		mustTable(t, TableConfig{Table: "deep", Pattern: "app.**"}),
	})
	require.NoError(t, err)

	testCases := map[string]string{
		"db.web.access":   "access",
		"db.web.error":    "web",
		"web.error":       "web",
		"db.web.a.b":      "logs",
		"db.app.a.b.c":    "deep",
		"db.other":        "logs",
		"db":              "logs",
		"unrelated.thing": "logs",
	}
	for tag, expected := range testCases {
		assert.Equal(t, expected, router.Route(tag).Name, tag)
	}

	names := []string{}
	for _, table := range router.Tables() {
		names = append(names, table.Name)
	}
	assert.Equal(t, []string{"access", "web", "deep", "logs"}, names)
}

func TestRouterDefaultTable(t *testing.T) {
	_, err := NewRouter("", []*Table{mustTable(t, TableConfig{Table: "a", Pattern: "x.*"})})
	assert.ErrorIs(t, err, constants.ErrConfiguration)

	_, err = NewRouter("", []*Table{mustTable(t, TableConfig{Table: "a"}), mustTable(t, TableConfig{Table: "b"})})
	assert.ErrorIs(t, err, constants.ErrConfiguration)

	_, err = BuildRouter(&Config{Tables: []TableConfig{{Table: "a", Pattern: "[unclosed"}}})
	assert.ErrorIs(t, err, constants.ErrConfiguration)

	router, err := BuildRouter(&Config{Tables: []TableConfig{{Table: "a"}}})
	require.NoError(t, err)
	assert.Equal(t, "a", router.Route("anything").Name)
}

func TestTableMap(t *testing.T) {
	record := types.NewRecord(time.Now(), types.Row{
		"timestamp": types.Text("2011-01-02 13:14:15"),
		"host":      types.Text("web1"),
		"message":   types.Text("hello"),
		"extra":     types.Int(1),
	})

	table := mustTable(t, TableConfig{Table: "logs", ColumnMapping: "timestamp:created_at, host ,message:message"})
	row, err := table.Map(record)
	require.NoError(t, err)
	assert.Equal(t, types.Row{
		"created_at": types.Text("2011-01-02 13:14:15"),
		"host":       types.Text("web1"),
		"message":    types.Text("hello"),
	}, row)

	identity := mustTable(t, TableConfig{Table: "logs"})
	row, err = identity.Map(record)
	require.NoError(t, err)
	assert.Len(t, row, 4)
	row["host"] = types.Text("changed")
	assert.Equal(t, "web1", record.Fields["host"].Text())

	_, err = table.Map(types.NewRecord(time.Now(), types.Row{"other": types.Int(1)}))
	assert.Error(t, err)

	for _, mapping := range []string{"a:", ":b", "a:x,b:x"} {
		_, err := NewTable(TableConfig{Table: "logs", ColumnMapping: mapping})
		assert.ErrorIs(t, err, constants.ErrConfiguration, mapping)
	}
}

func TestConfigValidate(t *testing.T) {
	config := &Config{Tables: []TableConfig{{Table: "logs"}}}
	require.NoError(t, config.Validate())
	assert.Equal(t, constants.DefaultFlushWorkers, config.FlushWorkers)
	assert.Equal(t, constants.DefaultMaxRetries, config.MaxRetries)
	assert.Equal(t, constants.DefaultRetryWait, config.RetryWait)
	assert.Equal(t, constants.DefaultRowRetries, config.Tables[0].NumRetries)

	assert.ErrorIs(t, (&Config{}).Validate(), constants.ErrConfiguration)
	assert.ErrorIs(t, (&Config{Tables: []TableConfig{{}}}).Validate(), constants.ErrConfiguration)
}
