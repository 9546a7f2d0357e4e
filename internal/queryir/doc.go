// Package queryir provides the stream query representation used to describe
// consistency boundaries over the event log.
//
// A StreamQuery is the contract between the tree decision layer and every
// event log backend:
//
//	[Tree Engine] → [StreamQuery] → [in-memory matcher]
//	                              → [SQL compiler]
//	                              → [Redis log (matcher)]
//
// SEMANTICS:
//
// A query is a disjunction of criteria. Each criterion is a conjunction of
//
//   - "event type ∈ Types" (skipped when Types is empty)
//   - "event carries every tag in Tags" (skipped when Tags is empty)
//
// A query without criteria is the wildcard and matches every event. A
// criterion without types and without tags is rejected by Validate: it would
// silently turn the whole disjunction into a wildcard.
//
// APPEND CONDITION:
//
// AppendCondition pairs a query with the highest sequence number the writer
// observed while deciding. The log must reject the append when any event
// matching the query has a larger sequence number. This is the only
// concurrency primitive; there are no locks.
//
// Example (boundary of addNode("a", "b")):
//
//	cond := AppendCondition{
//	    Query: New(
//	        TypesAndTags([]ir.EventType{ir.EventTypeNodeAdded}, ir.NewTag("id", "a")),
//	        TypesAndTags([]ir.EventType{ir.EventTypeNodeAdded}, ir.NewTag("id", "b")),
//	    ),
//	    HighestSequenceNumber: 12,
//	}
package queryir
