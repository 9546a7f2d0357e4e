package queryir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
)

// Criterion is one disjunct of a StreamQuery.
type Criterion struct {
	Types []ir.EventType // nil = any type
	Tags  ir.Tags        // nil = any tags
}

// TypesAndTags creates a criterion restricted to the given types and tags.
func TypesAndTags(types []ir.EventType, tags ...ir.Tag) Criterion {
	return Criterion{Types: types, Tags: tags}
}

// TaggedWith creates a criterion matching events of any type carrying all tags.
func TaggedWith(tags ...ir.Tag) Criterion {
	return Criterion{Tags: tags}
}

// Matches reports whether the event satisfies this criterion.
func (c Criterion) Matches(e ir.Event) bool {
	if len(c.Types) > 0 && !slices.Contains(c.Types, e.Type) {
		return false
	}
	return e.Tags.ContainsAll(c.Tags)
}

// String renders the criterion as "types[...] tags[...]".
func (c Criterion) String() string {
	var parts []string
	if len(c.Types) > 0 {
		types := make([]string, len(c.Types))
		for i, t := range c.Types {
			types[i] = string(t)
		}
		parts = append(parts, "types["+strings.Join(types, ",")+"]")
	}
	if len(c.Tags) > 0 {
		tags := make([]string, len(c.Tags))
		for i, t := range c.Tags {
			tags[i] = t.String()
		}
		parts = append(parts, "tags["+strings.Join(tags, ",")+"]")
	}
	return strings.Join(parts, " ")
}

// StreamQuery is a disjunction of criteria. The zero value is the wildcard.
type StreamQuery struct {
	Criteria []Criterion
}

// New creates a query from the given criteria.
func New(criteria ...Criterion) StreamQuery {
	return StreamQuery{Criteria: criteria}
}

// Wildcard returns the query that matches every event.
func Wildcard() StreamQuery {
	return StreamQuery{}
}

// IsWildcard reports whether the query matches every event.
func (q StreamQuery) IsWildcard() bool {
	return len(q.Criteria) == 0
}

// Matches reports whether any criterion matches the event.
func (q StreamQuery) Matches(e ir.Event) bool {
	if q.IsWildcard() {
		return true
	}
	for _, c := range q.Criteria {
		if c.Matches(e) {
			return true
		}
	}
	return false
}

// String renders the query for logs and CLI output.
func (q StreamQuery) String() string {
	if q.IsWildcard() {
		return "*"
	}
	parts := make([]string, len(q.Criteria))
	for i, c := range q.Criteria {
		parts[i] = "(" + c.String() + ")"
	}
	return strings.Join(parts, " OR ")
}

// Validate checks that every criterion restricts something and that tags
// have non-empty keys.
//
// Validate is a pure function with no side effects.
func Validate(q StreamQuery) error {
	for i, c := range q.Criteria {
		if len(c.Types) == 0 && len(c.Tags) == 0 {
			return fmt.Errorf("criterion %d: must restrict types or tags (use Wildcard for match-all)", i)
		}
		for _, t := range c.Types {
			if t == "" {
				return fmt.Errorf("criterion %d: empty event type", i)
			}
		}
		for _, t := range c.Tags {
			if t.Key == "" {
				return fmt.Errorf("criterion %d: tag key must not be empty", i)
			}
		}
	}
	return nil
}

// AppendCondition guards an append: it fails if an event matching Query was
// committed after HighestSequenceNumber.
type AppendCondition struct {
	Query                 StreamQuery
	HighestSequenceNumber ir.SequenceNumber
}

// String renders the condition for logs.
func (c AppendCondition) String() string {
	return fmt.Sprintf("%s after %d", c.Query, c.HighestSequenceNumber)
}

// ViolatedBy reports whether the envelope breaks the condition.
func (c AppendCondition) ViolatedBy(env ir.EventEnvelope) bool {
	return env.SequenceNumber > c.HighestSequenceNumber && c.Query.Matches(env.Event)
}
