package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
)

func newCompiler(t *testing.T) *SQLCompiler {
	t.Helper()
	c, err := NewSQLCompiler("")
	require.NoError(t, err)
	return c
}

func TestNewSQLCompiler_TableNames(t *testing.T) {
	c := newCompiler(t)
	assert.Equal(t, "tree_events", c.EventsTable)
	assert.Equal(t, "tree_events_tags", c.TagsTable)

	c, err := NewSQLCompiler("dcb_events_test")
	require.NoError(t, err)
	assert.Equal(t, "dcb_events_test_tags", c.TagsTable)
}

func TestNewSQLCompiler_RejectsInjection(t *testing.T) {
	for _, name := range []string{"events; DROP TABLE x", "1events", "ev-ents", "ev ents"} {
		_, err := NewSQLCompiler(name)
		assert.Error(t, err, name)
	}
}

func TestWhere_Wildcard(t *testing.T) {
	sql, params, err := newCompiler(t).Where(queryir.Wildcard())
	require.NoError(t, err)

	assert.Equal(t, "1 = 1", sql)
	assert.Empty(t, params)
}

func TestWhere_SingleCriterion(t *testing.T) {
	q := queryir.New(queryir.TypesAndTags(
		[]ir.EventType{ir.EventTypeNodeAdded},
		ir.NewTag(ir.TagKeyID, "a"),
	))

	sql, params, err := newCompiler(t).Where(q)
	require.NoError(t, err)

	assert.Equal(t,
		"(e.type IN (?) AND EXISTS (SELECT 1 FROM tree_events_tags t WHERE t.sequence_number = e.sequence_number AND t.key = ? AND t.value = ?))",
		sql)
	assert.Equal(t, []any{"NodeAdded", "id", "a"}, params)
}

func TestWhere_Disjunction(t *testing.T) {
	q := queryir.New(
		queryir.TaggedWith(ir.NewTag(ir.TagKeyID, "a")),
		queryir.TaggedWith(ir.NewTag(ir.TagKeyID, "root")),
	)

	sql, params, err := newCompiler(t).Where(q)
	require.NoError(t, err)

	assert.Contains(t, sql, ") OR (")
	assert.NotContains(t, sql, "root", "values must never be interpolated")
	assert.Equal(t, []any{"id", "a", "id", "root"}, params)
}

func TestWhere_InvalidQuery(t *testing.T) {
	_, _, err := newCompiler(t).Where(queryir.New(queryir.Criterion{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile query")
}

func TestSelectEvents_OrderedAfterWatermark(t *testing.T) {
	q := queryir.New(queryir.TaggedWith(ir.NewTag(ir.TagKeyID, "a")))

	sql, params, err := newCompiler(t).SelectEvents(q, 7)
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM tree_events e")
	assert.Contains(t, sql, "e.sequence_number > ?")
	assert.Contains(t, sql, "ORDER BY e.sequence_number ASC")
	assert.Equal(t, []any{int64(7), "id", "a"}, params)
}

func TestConflictProbe(t *testing.T) {
	cond := queryir.AppendCondition{
		Query:                 queryir.New(queryir.TaggedWith(ir.NewTag(ir.TagKeyID, "a"))),
		HighestSequenceNumber: 3,
	}

	sql, params, err := newCompiler(t).ConflictProbe(cond)
	require.NoError(t, err)

	assert.Contains(t, sql, "LIMIT 1")
	assert.Equal(t, []any{int64(3), "id", "a"}, params)
}
