package projection

import (
	"slices"
	"strings"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
)

// Node is a vertex of the hierarchy.
//
// A node is owned by its parent's Children slice. Parent is a back-reference
// used only for upward walks; it is nil for the root alone.
type Node struct {
	ID string

	// SequenceNumber is the log position at which the node was created or
	// last moved. Informational only.
	SequenceNumber ir.SequenceNumber

	Parent   *Node
	Children []*Node
}

func newNode(id string, seq ir.SequenceNumber, parent *Node) *Node {
	return &Node{ID: id, SequenceNumber: seq, Parent: parent}
}

// addChild attaches child as the last child of n and restamps it.
func (n *Node) addChild(child *Node, seq ir.SequenceNumber) {
	child.SequenceNumber = seq
	child.Parent = n
	n.Children = append(n.Children, child)
}

// removeChild detaches the child with the given id, if present.
func (n *Node) removeChild(id string) {
	n.Children = slices.DeleteFunc(n.Children, func(c *Node) bool {
		if c.ID == id {
			c.Parent = nil
			return true
		}
		return false
	})
}

// AncestorIDs returns the ids from n up to the root, n first, along with the
// highest sequence number stamped on any node of that chain.
func (n *Node) AncestorIDs() ([]string, ir.SequenceNumber) {
	var ids []string
	var highest ir.SequenceNumber
	for a := n; a != nil; a = a.Parent {
		ids = append(ids, a.ID)
		highest = max(highest, a.SequenceNumber)
	}
	return ids, highest
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool {
	return n.Parent == nil
}

func (n *Node) render(b *strings.Builder, level int) {
	b.WriteString(strings.Repeat(" ", level*2))
	b.WriteString(n.ID)
	b.WriteString(" (")
	b.WriteString(formatSeq(n.SequenceNumber))
	b.WriteString(")\n")
	for _, c := range n.Children {
		c.render(b, level+1)
	}
}
