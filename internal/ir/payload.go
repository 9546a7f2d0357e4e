package ir

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// NormalizeID returns the NFC form of a node id. Payload strings are stored
// in NFC, so tags and comparisons must use the same form.
func NormalizeID(id string) string {
	return norm.NFC.String(id)
}

// NodeAdded is the payload of a NodeAdded event.
type NodeAdded struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId"`

	// HighestSequenceNumber is the watermark the decision was made at.
	// Informational only.
	HighestSequenceNumber SequenceNumber `json:"highestSequenceNumber,omitempty"`
}

// NodeMoved is the payload of a NodeMoved event.
type NodeMoved struct {
	ID          string `json:"id"`
	NewParentID string `json:"newParentId"`

	// Ancestor chains observed at decision time. Informational only.
	OldAncestorNodeIDs    []string       `json:"oldAncestorNodeIds,omitempty"`
	NewAncestorNodeIDs    []string       `json:"newAncestorNodeIds,omitempty"`
	HighestSequenceNumber SequenceNumber `json:"highestSequenceNumber,omitempty"`
}

// Payload is implemented by NodeAdded and NodeMoved.
type Payload interface {
	EventType() EventType
	Tags() Tags
	canonical() map[string]any
}

// EventType implements Payload.
func (p NodeAdded) EventType() EventType { return EventTypeNodeAdded }

// Tags implements Payload.
func (p NodeAdded) Tags() Tags {
	return Tags{NewTag(TagKeyID, NormalizeID(p.ID)), NewTag(TagKeyParentID, NormalizeID(p.ParentID))}
}

func (p NodeAdded) canonical() map[string]any {
	m := map[string]any{
		"id":       p.ID,
		"parentId": p.ParentID,
	}
	if p.HighestSequenceNumber > 0 {
		m["highestSequenceNumber"] = int64(p.HighestSequenceNumber)
	}
	return m
}

// EventType implements Payload.
func (p NodeMoved) EventType() EventType { return EventTypeNodeMoved }

// Tags implements Payload.
func (p NodeMoved) Tags() Tags {
	return Tags{NewTag(TagKeyID, NormalizeID(p.ID)), NewTag(TagKeyParentID, NormalizeID(p.NewParentID))}
}

func (p NodeMoved) canonical() map[string]any {
	m := map[string]any{
		"id":          p.ID,
		"newParentId": p.NewParentID,
	}
	if len(p.OldAncestorNodeIDs) > 0 {
		m["oldAncestorNodeIds"] = p.OldAncestorNodeIDs
	}
	if len(p.NewAncestorNodeIDs) > 0 {
		m["newAncestorNodeIds"] = p.NewAncestorNodeIDs
	}
	if p.HighestSequenceNumber > 0 {
		m["highestSequenceNumber"] = int64(p.HighestSequenceNumber)
	}
	return m
}

// NewEvent encodes a payload into an Event with a fresh UUIDv7 id.
func NewEvent(p Payload) (Event, error) {
	data, err := MarshalCanonical(p.canonical())
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", p.EventType(), err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Event{}, fmt.Errorf("generate event id: %w", err)
	}
	return Event{
		ID:   id.String(),
		Type: p.EventType(),
		Data: data,
		Tags: p.Tags(),
	}, nil
}

// DecodePayload parses the payload of a tree event.
// Returns an error for unknown event types or malformed data.
func DecodePayload(e Event) (Payload, error) {
	switch e.Type {
	case EventTypeNodeAdded:
		var p NodeAdded
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, fmt.Errorf("decode NodeAdded payload: %w", err)
		}
		return p, nil
	case EventTypeNodeMoved:
		var p NodeMoved
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, fmt.Errorf("decode NodeMoved payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}
