package projection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
)

// rootSequenceNumber is stamped on the root node so that every ancestor walk
// observes at least one position.
const rootSequenceNumber ir.SequenceNumber = 1

// HierarchyProjection is a node tree plus the high-water mark of the log
// position it has consumed.
//
// Not safe for concurrent use.
type HierarchyProjection struct {
	root   *Node
	seq    ir.SequenceNumber
	hasSeq bool
}

// New creates an empty projection holding only the root node.
func New() *HierarchyProjection {
	return &HierarchyProjection{root: newNode(ir.RootNodeID, rootSequenceNumber, nil)}
}

// Root returns the root node.
func (p *HierarchyProjection) Root() *Node {
	return p.root
}

// SequenceNumber returns the high-water mark. ok is false until the first
// event has been applied.
func (p *HierarchyProjection) SequenceNumber() (seq ir.SequenceNumber, ok bool) {
	return p.seq, p.hasSeq
}

// After returns the position to resume reading after, 0 when unset.
func (p *HierarchyProjection) After() ir.SequenceNumber {
	return p.seq
}

// Apply folds one envelope into the tree.
//
// Structurally impossible events are skipped and still advance the
// high-water mark. Errors are reserved for caller misuse (an envelope at or
// below the high-water mark, which resuming via After never produces) and
// for unknown event types or undecodable payloads. In those cases the
// projection is left unchanged.
func (p *HierarchyProjection) Apply(env ir.EventEnvelope) error {
	if p.hasSeq && env.SequenceNumber <= p.seq {
		return fmt.Errorf("event %d is not after high-water mark %d", env.SequenceNumber, p.seq)
	}

	payload, err := ir.DecodePayload(env.Event)
	if err != nil {
		return fmt.Errorf("apply event %d: %w", env.SequenceNumber, err)
	}

	switch pl := payload.(type) {
	case ir.NodeAdded:
		p.addNode(pl.ID, pl.ParentID, env.SequenceNumber)
	case ir.NodeMoved:
		p.moveNode(pl.ID, pl.NewParentID, env.SequenceNumber)
	}

	p.seq = env.SequenceNumber
	p.hasSeq = true
	return nil
}

// ApplyAll folds envelopes in order, stopping at the first error.
func (p *HierarchyProjection) ApplyAll(envs []ir.EventEnvelope) error {
	for _, env := range envs {
		if err := p.Apply(env); err != nil {
			return err
		}
	}
	return nil
}

func (p *HierarchyProjection) addNode(id, parentID string, seq ir.SequenceNumber) {
	if id == parentID {
		return
	}
	if p.FindNode(id) != nil {
		return
	}
	parent := p.FindNode(parentID)
	if parent == nil {
		return
	}
	parent.Children = append(parent.Children, newNode(id, seq, parent))
}

func (p *HierarchyProjection) moveNode(id, newParentID string, seq ir.SequenceNumber) {
	if id == newParentID || id == ir.RootNodeID {
		return
	}
	node := p.FindNode(id)
	if node == nil {
		return
	}
	oldParent := node.Parent
	if oldParent == nil {
		return
	}
	newParent := p.FindNode(newParentID)
	if newParent == nil {
		return
	}
	// A move below the node's own subtree would detach it from root.
	if isDescendant(newParent, node) {
		return
	}
	oldParent.removeChild(id)
	newParent.addChild(node, seq)
}

// isDescendant reports whether n lies in the subtree rooted at ancestor.
func isDescendant(n, ancestor *Node) bool {
	for a := n; a != nil; a = a.Parent {
		if a == ancestor {
			return true
		}
	}
	return false
}

// FindNode searches the tree breadth-first. Returns nil if absent.
func (p *HierarchyProjection) FindNode(id string) *Node {
	queue := []*Node{p.root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.ID == id {
			return n
		}
		queue = append(queue, n.Children...)
	}
	return nil
}

// Reset discards every node but the root and clears the high-water mark.
func (p *HierarchyProjection) Reset() {
	for _, c := range p.root.Children {
		c.Parent = nil
	}
	p.root.Children = nil
	p.seq = 0
	p.hasSeq = false
}

// Parents returns the parent id of every non-root node.
func (p *HierarchyProjection) Parents() map[string]string {
	parents := make(map[string]string)
	p.Walk(func(n *Node, _ int) {
		if n.Parent != nil {
			parents[n.ID] = n.Parent.ID
		}
	})
	return parents
}

// Walk visits nodes depth-first in child order, root first.
func (p *HierarchyProjection) Walk(fn func(n *Node, depth int)) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	visit(p.root, 0)
}

// String renders the tree as
//
//	Tree (<hwm>):
//	root (1)
//	  a (2)
//
// with two spaces of indentation per level. An unset hwm renders empty.
func (p *HierarchyProjection) String() string {
	var b strings.Builder
	b.WriteString("Tree (")
	if p.hasSeq {
		b.WriteString(formatSeq(p.seq))
	}
	b.WriteString("):\n")
	p.root.render(&b, 0)
	return b.String()
}

func formatSeq(seq ir.SequenceNumber) string {
	return strconv.FormatInt(int64(seq), 10)
}
