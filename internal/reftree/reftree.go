// Package reftree is a strict tree used to verify an event log.
//
// Unlike projection.HierarchyProjection, which skips impossible events,
// Tree rejects every invalid transition. Replaying a log through it proves
// that no invalid event was ever committed.
package reftree

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
)

// ErrInvalidTransition is wrapped by every rejection of Tree.
var ErrInvalidTransition = errors.New("invalid transition")

// ReplayError reports the first event a strict replay rejected.
type ReplayError struct {
	SequenceNumber ir.SequenceNumber
	Err            error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("validation failed at event %d: %v", e.SequenceNumber, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

// Tree is a plain parent/children map.
type Tree struct {
	parent   map[string]string
	children map[string][]string
}

// New creates a tree holding only the root.
func New() *Tree {
	return &Tree{
		parent:   map[string]string{},
		children: map[string][]string{},
	}
}

func (t *Tree) exists(id string) bool {
	if id == ir.RootNodeID {
		return true
	}
	_, ok := t.parent[id]
	return ok
}

// AddNode attaches id below parentID.
func (t *Tree) AddNode(id, parentID string) error {
	fail := func(reason string) error {
		return fmt.Errorf("%w: add node with id '%s': %s", ErrInvalidTransition, id, reason)
	}
	switch {
	case id == parentID:
		return fail("id equals parent node id")
	case t.exists(id):
		return fail("a node with that id already exists")
	case !t.exists(parentID):
		return fail(fmt.Sprintf("parent node '%s' does not exist", parentID))
	}
	t.parent[id] = parentID
	t.children[parentID] = append(t.children[parentID], id)
	return nil
}

// MoveNode re-attaches id below newParentID.
func (t *Tree) MoveNode(id, newParentID string) error {
	fail := func(reason string) error {
		return fmt.Errorf("%w: move node with id '%s' to '%s': %s", ErrInvalidTransition, id, newParentID, reason)
	}
	switch {
	case id == newParentID:
		return fail("id equals new parent node id")
	case id == ir.RootNodeID:
		return fail("the root node must not be moved")
	case !t.exists(id):
		return fail("the node to move does not exist")
	case !t.exists(newParentID):
		return fail("the new parent node does not exist")
	case t.parent[id] == newParentID:
		return fail("that is already the parent node")
	case t.isAncestor(id, newParentID):
		return fail("the new parent node is a descendant node of the node to move")
	}

	old := t.parent[id]
	t.children[old] = slices.DeleteFunc(t.children[old], func(c string) bool { return c == id })
	t.parent[id] = newParentID
	t.children[newParentID] = append(t.children[newParentID], id)
	return nil
}

// isAncestor reports whether ancestor is on the chain from id up to root.
func (t *Tree) isAncestor(ancestor, id string) bool {
	for n := id; ; {
		if n == ancestor {
			return true
		}
		p, ok := t.parent[n]
		if !ok {
			return false
		}
		n = p
	}
}

// Apply replays one envelope strictly.
func (t *Tree) Apply(env ir.EventEnvelope) error {
	payload, err := ir.DecodePayload(env.Event)
	if err == nil {
		switch p := payload.(type) {
		case ir.NodeAdded:
			err = t.AddNode(p.ID, p.ParentID)
		case ir.NodeMoved:
			err = t.MoveNode(p.ID, p.NewParentID)
		}
	}
	if err != nil {
		return &ReplayError{SequenceNumber: env.SequenceNumber, Err: err}
	}
	return nil
}

// Verify replays envs into a fresh tree. On failure the returned tree holds
// the state just before the offending event.
func Verify(envs []ir.EventEnvelope) (*Tree, error) {
	t := New()
	for _, env := range envs {
		if err := t.Apply(env); err != nil {
			return t, err
		}
	}
	return t, nil
}

// Len returns the number of nodes, root included.
func (t *Tree) Len() int {
	return len(t.parent) + 1
}

// Parents returns the parent id of every non-root node.
func (t *Tree) Parents() map[string]string {
	out := make(map[string]string, len(t.parent))
	for id, p := range t.parent {
		out[id] = p
	}
	return out
}

// String renders ids only, two spaces per level.
func (t *Tree) String() string {
	var b strings.Builder
	var visit func(id string, level int)
	visit = func(id string, level int) {
		b.WriteString(strings.Repeat(" ", level*2))
		b.WriteString(id)
		b.WriteByte('\n')
		for _, c := range t.children[id] {
			visit(c, level+1)
		}
	}
	visit(ir.RootNodeID, 0)
	return b.String()
}
