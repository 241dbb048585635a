package source

import (
	"context"
	"fmt"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/pkg/jdbc"
	"github.com/datazip-inc/sqlstream/types"
	"github.com/datazip-inc/sqlstream/utils"
	"github.com/datazip-inc/sqlstream/utils/template"
	"github.com/datazip-inc/sqlstream/utils/typeutils"
	"github.com/rs/zerolog"
)

// Querier is the part of a database connection a cursor reads through.
type Querier interface {
	DiscoverTable(ctx context.Context, table string) (*types.TableSchema, error)
	RangeQuery(ctx context.Context, req jdbc.RangeRequest) ([]jdbc.ScannedRow, error)
}

// TaggedRecords is the run of records sharing one tag.
type TaggedRecords struct {
	Tag     string
	Records []types.Record
}

// Batch is the result of one poll.
type Batch struct {
	// Groups are ordered by the first appearance of their tag
	Groups []TaggedRecords
	// Watermark is the value of the last delivered row, or the polled one if none
	Watermark *types.Value
	Rows      int
	Skipped   int
}

// TableCursor polls one table for rows newer than a watermark.
type TableCursor struct {
	db       Querier
	config   TableConfig
	tag      string
	column   string
	schema   *types.TableSchema
	where    *template.Template
	hostname string
	clock    Clock
	log      zerolog.Logger
}

// NewTableCursor discovers the table schema and resolves the watermark column.
func NewTableCursor(ctx context.Context, db Querier, config TableConfig, tagPrefix string, clock Clock, log zerolog.Logger) (*TableCursor, error) {
	if config.Tag == "" {
		config.Tag = config.Table
	}
	log = log.With().Str("table", config.Table).Logger()

	schema, err := db.DiscoverTable(ctx, config.Table)
	if err != nil {
		return nil, err
	}

	column := config.UpdateColumn
	if column == "" {
		if len(schema.PrimaryKey) != 1 {
			return nil, fmt.Errorf("%w: table[%s] has %d primary key columns, update_column must be set", constants.ErrConfiguration, config.Table, len(schema.PrimaryKey))
		}
		column = schema.PrimaryKey[0]
	}

	for option, name := range map[string]string{"update_column": column, "time_column": config.TimeColumn, "tag_column": config.TagColumn} {
		if name != "" && !schema.HasColumn(name) {
			return nil, fmt.Errorf("%w: %s[%s] not found in table[%s]", constants.ErrSchema, option, name, config.Table)
		}
	}

	cursor := &TableCursor{
		db:       db,
		config:   config,
		tag:      FullTag(tagPrefix, config.Tag),
		column:   column,
		schema:   schema,
		hostname: utils.Hostname(),
		clock:    clock,
		log:      log,
	}
	if config.Where != "" {
		cursor.where, err = template.Compile(config.Where)
		if err != nil {
			return nil, fmt.Errorf("table[%s] where: %w", config.Table, err)
		}
	}
	return cursor, nil
}

func (c *TableCursor) Table() string {
	return c.config.Table
}

func (c *TableCursor) Column() string {
	return c.column
}

func (c *TableCursor) Tag() string {
	return c.tag
}

// Restore reads the watermark back from a checkpoint snapshot. A snapshot
// without the watermark column restarts the table from the beginning.
func (c *TableCursor) Restore(snapshot types.Row) (*types.Value, error) {
	if snapshot == nil {
		return nil, nil
	}
	value, found := snapshot[c.column]
	if !found {
		c.log.Warn().Str("column", c.column).Msg("checkpoint has no value for the update column, table will be rescanned")
		return nil, nil
	}
	if value.IsNull() {
		return nil, nil
	}

	column, _ := c.schema.Column(c.column)
	coerced, err := typeutils.Coerce(value, column.DataType)
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint of table[%s]: %s", constants.ErrConfiguration, c.config.Table, err)
	}
	return &coerced, nil
}

// Snapshot is the checkpoint row for a watermark.
func (c *TableCursor) Snapshot(watermark *types.Value) types.Row {
	if watermark == nil {
		return types.Row{}
	}
	return types.Row{c.column: *watermark}
}

// Poll returns the rows after last in the order the database sorts the
// update column, grouped by tag. The watermark is the update column of the
// last delivered row. A limit of 0 reads every remaining row.
func (c *TableCursor) Poll(ctx context.Context, last *types.Value, limit int) (*Batch, error) {
	where, err := c.renderWhere(last)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.RangeQuery(ctx, jdbc.RangeRequest{
		Table:  c.config.Table,
		Column: c.column,
		After:  last,
		Limit:  limit,
		Where:  where,
	})
	if err != nil {
		return nil, err
	}

	batch := &Batch{Watermark: last}
	groups := make(map[string]int)
	for idx, scanned := range rows {
		if scanned.Err != nil {
			c.log.Warn().Int("row", idx).Err(scanned.Err).Msg("skipping row that failed to serialize")
			batch.Skipped++
			continue
		}

		value, found := scanned.Row[c.column]
		if !found || value.IsNull() {
			c.log.Warn().Int("row", idx).Str("column", c.column).Msg("skipping row with null update column")
			batch.Skipped++
			continue
		}
		// rows arrive in the database collation, which may differ from Go ordering
		if advance, err := typeutils.IsAdvance(batch.Watermark, value); err != nil {
			c.log.Warn().Int("row", idx).Str("column", c.column).Err(err).Msgf("update column value %s is not comparable with %s", value, batch.Watermark)
		} else if !advance {
			c.log.Debug().Int("row", idx).Str("column", c.column).Msgf("update column value %s sorts before %s in Go ordering, keeping database order", value, batch.Watermark)
		}

		tag, record := c.toRecord(scanned.Row)
		pos, found := groups[tag]
		if !found {
			pos = len(batch.Groups)
			groups[tag] = pos
			batch.Groups = append(batch.Groups, TaggedRecords{Tag: tag})
		}
		batch.Groups[pos].Records = append(batch.Groups[pos].Records, record)

		watermark := value
		batch.Watermark = &watermark
		batch.Rows++
	}
	return batch, nil
}

func (c *TableCursor) renderWhere(last *types.Value) (string, error) {
	if c.where == nil {
		return "", nil
	}
	lastValues := types.Row{}
	if last != nil {
		lastValues[c.column] = *last
	}
	where, err := c.where.Render(template.Context{
		Time:       c.clock.Now(),
		Hostname:   c.hostname,
		Tag:        c.tag,
		LastValues: lastValues,
	})
	if err != nil {
		return "", utils.Classify(utils.Deterministic, fmt.Errorf("%w: %s", constants.ErrConfiguration, err))
	}
	return where, nil
}

func (c *TableCursor) toRecord(row types.Row) (string, types.Record) {
	tag := c.tag
	if c.config.TagColumn != "" {
		if value, found := row[c.config.TagColumn]; found {
			if !value.IsNull() {
				tag = tag + "." + value.String()
			}
			delete(row, c.config.TagColumn)
		}
	}

	eventTime := c.clock.Now()
	if c.config.TimeColumn != "" {
		if value, found := row[c.config.TimeColumn]; found {
			parsed, err := typeutils.EventTime(value)
			if err != nil {
				c.log.Warn().Str("column", c.config.TimeColumn).Err(err).Msg("failed to parse time column, using current time")
			} else {
				eventTime = parsed
			}
		}
	}
	return tag, types.NewRecord(eventTime, row)
}
