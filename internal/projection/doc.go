// Package projection folds tree events into an in-memory hierarchy.
//
// HierarchyProjection is a pure reducer over an ordered event stream. It has
// no knowledge of consistency boundaries and never reads the log itself;
// callers feed it envelopes strictly after its high-water mark.
//
// Structurally impossible events (self-parenting, duplicate ids, missing
// nodes, moving root) are skipped, but still advance the high-water mark.
// The log is authoritative, so a rebuild must end at the same position a
// live replayer reached. Use package reftree to replay strictly.
package projection
