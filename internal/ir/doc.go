// Package ir provides the event types shared by every layer of the tree.
//
// This package contains type definitions and payload encoding only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Sequence numbers are assigned by the event log, never by callers
//   - Tag keys are exactly "id" and "parent_id"
//   - Payloads are stored as RFC 8785 canonical JSON so that identical events
//     produce identical bytes across backends
package ir
