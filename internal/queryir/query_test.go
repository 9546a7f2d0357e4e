package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
)

var nodeAdded = []ir.EventType{ir.EventTypeNodeAdded}

func event(typ ir.EventType, id, parentID string) ir.Event {
	return ir.Event{
		ID:   "evt-" + id,
		Type: typ,
		Tags: ir.Tags{ir.NewTag(ir.TagKeyID, id), ir.NewTag(ir.TagKeyParentID, parentID)},
	}
}

func TestWildcard_MatchesEverything(t *testing.T) {
	q := Wildcard()

	assert.True(t, q.IsWildcard())
	assert.True(t, q.Matches(event(ir.EventTypeNodeAdded, "a", "root")))
	assert.True(t, q.Matches(ir.Event{ID: "x", Type: "Other"}))
	assert.Equal(t, "*", q.String())
}

func TestCriterion_TypesAndTags(t *testing.T) {
	c := TypesAndTags(nodeAdded, ir.NewTag(ir.TagKeyID, "a"))

	assert.True(t, c.Matches(event(ir.EventTypeNodeAdded, "a", "root")))
	assert.False(t, c.Matches(event(ir.EventTypeNodeMoved, "a", "root")), "type must match")
	assert.False(t, c.Matches(event(ir.EventTypeNodeAdded, "b", "a")), "parent_id=a is not id=a")
}

func TestCriterion_AllTagsRequired(t *testing.T) {
	c := TaggedWith(ir.NewTag(ir.TagKeyID, "a"), ir.NewTag(ir.TagKeyParentID, "root"))

	assert.True(t, c.Matches(event(ir.EventTypeNodeMoved, "a", "root")))
	assert.False(t, c.Matches(event(ir.EventTypeNodeMoved, "a", "b")))
}

func TestStreamQuery_Disjunction(t *testing.T) {
	q := New(
		TypesAndTags(nodeAdded, ir.NewTag(ir.TagKeyID, "a")),
		TypesAndTags(nodeAdded, ir.NewTag(ir.TagKeyID, "b")),
	)

	assert.False(t, q.IsWildcard())
	assert.True(t, q.Matches(event(ir.EventTypeNodeAdded, "a", "root")))
	assert.True(t, q.Matches(event(ir.EventTypeNodeAdded, "b", "root")))
	assert.False(t, q.Matches(event(ir.EventTypeNodeAdded, "c", "a")))
	assert.Equal(t, "(types[NodeAdded] tags[id:a]) OR (types[NodeAdded] tags[id:b])", q.String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   StreamQuery
		wantErr string
	}{
		{"wildcard", Wildcard(), ""},
		{"tags only", New(TaggedWith(ir.NewTag("id", "a"))), ""},
		{"types only", New(Criterion{Types: nodeAdded}), ""},
		{"empty criterion", New(Criterion{}), "must restrict types or tags"},
		{"empty type", New(Criterion{Types: []ir.EventType{""}}), "empty event type"},
		{"empty tag key", New(TaggedWith(ir.NewTag("", "a"))), "tag key must not be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAppendCondition_ViolatedBy(t *testing.T) {
	cond := AppendCondition{
		Query:                 New(TaggedWith(ir.NewTag(ir.TagKeyID, "a"))),
		HighestSequenceNumber: 5,
	}

	matching := event(ir.EventTypeNodeMoved, "a", "b")
	other := event(ir.EventTypeNodeAdded, "z", "root")

	assert.False(t, cond.ViolatedBy(ir.EventEnvelope{Event: matching, SequenceNumber: 5}), "at watermark is fine")
	assert.True(t, cond.ViolatedBy(ir.EventEnvelope{Event: matching, SequenceNumber: 6}))
	assert.False(t, cond.ViolatedBy(ir.EventEnvelope{Event: other, SequenceNumber: 6}))
	assert.Equal(t, "(tags[id:a]) after 5", cond.String())
}
