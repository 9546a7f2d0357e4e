package querysql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
)

// DefaultTable is the events table name used when none is configured.
const DefaultTable = "tree_events"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLCompiler compiles stream queries to parameterized SQL for SQLite.
//
// CRITICAL: every SELECT orders by sequence_number ASC.
// CRITICAL: all values are parameterized, never interpolated. Only the table
// names, validated against identifierPattern, are spliced into the text.
type SQLCompiler struct {
	// EventsTable holds one row per event.
	EventsTable string

	// TagsTable holds one row per (event, tag) pair.
	TagsTable string
}

// NewSQLCompiler creates a compiler for the given events table name.
// The tags table is named "<table>_tags".
func NewSQLCompiler(table string) (*SQLCompiler, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQLCompiler{
		EventsTable: table,
		TagsTable:   table + "_tags",
	}, nil
}

// Where compiles a query to a boolean SQL expression over the alias "e".
// Returns (sql, params, error).
func (c *SQLCompiler) Where(q queryir.StreamQuery) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("compile query: %w", err)
	}
	if q.IsWildcard() {
		return "1 = 1", nil, nil
	}

	var parts []string
	var params []any
	for _, crit := range q.Criteria {
		sql, critParams := c.compileCriterion(crit)
		parts = append(parts, sql)
		params = append(params, critParams...)
	}

	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", params, nil
}

// compileCriterion compiles one conjunction of type membership and tag presence.
func (c *SQLCompiler) compileCriterion(crit queryir.Criterion) (string, []any) {
	var conds []string
	var params []any

	if len(crit.Types) > 0 {
		placeholders := make([]string, len(crit.Types))
		for i, t := range crit.Types {
			placeholders[i] = "?"
			params = append(params, string(t))
		}
		conds = append(conds, fmt.Sprintf("e.type IN (%s)", strings.Join(placeholders, ", ")))
	}

	for _, tag := range crit.Tags {
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM %s t WHERE t.sequence_number = e.sequence_number AND t.key = ? AND t.value = ?)",
			c.TagsTable))
		params = append(params, tag.Key, tag.Value)
	}

	return "(" + strings.Join(conds, " AND ") + ")", params
}

// SelectEvents compiles an ordered read of all events matching q with a
// sequence number greater than after.
func (c *SQLCompiler) SelectEvents(q queryir.StreamQuery, after ir.SequenceNumber) (string, []any, error) {
	where, params, err := c.Where(q)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf(
		"SELECT e.sequence_number, e.id, e.type, e.data, e.tags FROM %s e WHERE e.sequence_number > ? AND %s ORDER BY e.sequence_number ASC",
		c.EventsTable, where)

	return sql, append([]any{int64(after)}, params...), nil
}

// ConflictProbe compiles the check behind an append condition: it selects
// the first event that violates the condition, if any.
func (c *SQLCompiler) ConflictProbe(cond queryir.AppendCondition) (string, []any, error) {
	where, params, err := c.Where(cond.Query)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf(
		"SELECT e.sequence_number FROM %s e WHERE e.sequence_number > ? AND %s ORDER BY e.sequence_number ASC LIMIT 1",
		c.EventsTable, where)

	return sql, append([]any{int64(cond.HighestSequenceNumber)}, params...), nil
}
