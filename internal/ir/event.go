package ir

import (
	"fmt"
	"slices"
	"strings"
)

// EventType names the kind of a stored event.
type EventType string

const (
	// EventTypeNodeAdded records the creation of a node underneath a parent.
	EventTypeNodeAdded EventType = "NodeAdded"

	// EventTypeNodeMoved records the re-attachment of a node to a new parent.
	EventTypeNodeMoved EventType = "NodeMoved"
)

// Tag keys used on tree events.
const (
	TagKeyID       = "id"
	TagKeyParentID = "parent_id"
)

// RootNodeID is the id of the distinguished root node. It always exists,
// has no parent and is never moved.
const RootNodeID = "root"

// SequenceNumber is the position of an event in the log. The first event
// committed to an empty log receives 1; 0 means "nothing observed".
type SequenceNumber int64

// Tag is a key/value pair attached to an event for filtering.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// String renders the tag as "key:value".
func (t Tag) String() string {
	return t.Key + ":" + t.Value
}

// NewTag creates a Tag.
func NewTag(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// Tags is a set of tags. Order is not significant; Normalize sorts and dedups.
type Tags []Tag

// Normalize returns a sorted copy without duplicates.
func (ts Tags) Normalize() Tags {
	out := slices.Clone(ts)
	slices.SortFunc(out, func(a, b Tag) int {
		if c := strings.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return strings.Compare(a.Value, b.Value)
	})
	return slices.Compact(out)
}

// Contains reports whether the set holds the given tag.
func (ts Tags) Contains(t Tag) bool {
	return slices.Contains(ts, t)
}

// ContainsAll reports whether every tag of other is present.
func (ts Tags) ContainsAll(other Tags) bool {
	for _, t := range other {
		if !ts.Contains(t) {
			return false
		}
	}
	return true
}

// Value returns the value of the first tag with the given key.
func (ts Tags) Value(key string) (string, bool) {
	for _, t := range ts {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Event is an immutable record to be appended to the log.
type Event struct {
	// ID uniquely identifies the event. Generated by the writer (UUIDv7).
	ID string `json:"id"`

	// Type names the event kind.
	Type EventType `json:"type"`

	// Data is the encoded payload (canonical JSON).
	Data []byte `json:"data"`

	// Tags are the filterable key/value pairs.
	Tags Tags `json:"tags"`
}

// Validate checks the structural requirements for appending an event.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("event %s: type is required", e.ID)
	}
	for _, t := range e.Tags {
		if t.Key == "" {
			return fmt.Errorf("event %s: tag key must not be empty", e.ID)
		}
	}
	return nil
}

// EventEnvelope is an event as read back from the log.
type EventEnvelope struct {
	Event          Event          `json:"event"`
	SequenceNumber SequenceNumber `json:"sequence_number"`
}
