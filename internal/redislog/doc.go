// Package redislog implements eventlog.Log on Redis.
//
// Events are kept in a list under "<prefix>events" in commit order, so the
// list index of an event is its sequence number minus one. "<prefix>head"
// holds the highest committed sequence number and "<prefix>ids" the set of
// event ids. Conditional appends use WATCH on the head key and commit in a
// MULTI block; a concurrent commit aborts the transaction and the append is
// re-evaluated against the new head.
package redislog
