package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwaidelich/dcb-example-tree/internal/ir"
)

// stream builds envelopes numbered from 1 in argument order.
func stream(t *testing.T, payloads ...ir.Payload) []ir.EventEnvelope {
	t.Helper()
	envs := make([]ir.EventEnvelope, len(payloads))
	for i, p := range payloads {
		e, err := ir.NewEvent(p)
		require.NoError(t, err)
		envs[i] = ir.EventEnvelope{Event: e, SequenceNumber: ir.SequenceNumber(i + 1)}
	}
	return envs
}

func add(id, parent string) ir.Payload { return ir.NodeAdded{ID: id, ParentID: parent} }
func move(id, parent string) ir.Payload {
	return ir.NodeMoved{ID: id, NewParentID: parent}
}

func TestNew_OnlyRoot(t *testing.T) {
	p := New()

	_, ok := p.SequenceNumber()
	assert.False(t, ok)
	assert.Equal(t, ir.RootNodeID, p.Root().ID)
	assert.Equal(t, ir.SequenceNumber(1), p.Root().SequenceNumber)
	assert.True(t, p.Root().IsRoot())
	assert.Equal(t, "Tree ():\nroot (1)\n", p.String())
}

func TestApply_NodeAdded(t *testing.T) {
	p := New()
	require.NoError(t, p.ApplyAll(stream(t, add("a", "root"), add("b", "a"))))

	b := p.FindNode("b")
	require.NotNil(t, b)
	assert.Equal(t, "a", b.Parent.ID)
	assert.Equal(t, ir.SequenceNumber(2), b.SequenceNumber)

	seq, ok := p.SequenceNumber()
	assert.True(t, ok)
	assert.Equal(t, ir.SequenceNumber(2), seq)
}

func TestApply_NodeMoved(t *testing.T) {
	p := New()
	require.NoError(t, p.ApplyAll(stream(t, add("a", "root"), add("b", "root"), move("a", "b"))))

	a := p.FindNode("a")
	require.NotNil(t, a)
	assert.Equal(t, "b", a.Parent.ID)
	assert.Equal(t, ir.SequenceNumber(3), a.SequenceNumber, "move restamps")
	assert.Len(t, p.Root().Children, 1)
	assert.Equal(t, map[string]string{"a": "b", "b": "root"}, p.Parents())
}

func TestApply_SkipsImpossibleEvents(t *testing.T) {
	tests := []struct {
		name   string
		events []ir.Payload
		want   map[string]string
	}{
		{"self parent", []ir.Payload{add("a", "a")}, map[string]string{}},
		{"duplicate id", []ir.Payload{add("a", "root"), add("b", "root"), add("a", "b")}, map[string]string{"a": "root", "b": "root"}},
		{"missing parent", []ir.Payload{add("a", "x")}, map[string]string{}},
		{"add root", []ir.Payload{add("root", "a")}, map[string]string{}},
		{"move to self", []ir.Payload{add("a", "root"), move("a", "a")}, map[string]string{"a": "root"}},
		{"move root", []ir.Payload{add("a", "root"), move("root", "a")}, map[string]string{"a": "root"}},
		{"move missing node", []ir.Payload{add("a", "root"), move("x", "a")}, map[string]string{"a": "root"}},
		{"move to missing parent", []ir.Payload{add("a", "root"), move("a", "x")}, map[string]string{"a": "root"}},
		{"move below descendant", []ir.Payload{add("a", "root"), add("b", "a"), move("a", "b")}, map[string]string{"a": "root", "b": "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			envs := stream(t, tt.events...)
			require.NoError(t, p.ApplyAll(envs))

			assert.Equal(t, tt.want, p.Parents())
			seq, ok := p.SequenceNumber()
			assert.True(t, ok)
			assert.Equal(t, ir.SequenceNumber(len(envs)), seq, "hwm advances on skipped events")
		})
	}
}

func TestApply_RejectsReplayedPosition(t *testing.T) {
	p := New()
	envs := stream(t, add("a", "root"), add("b", "root"))
	require.NoError(t, p.ApplyAll(envs))

	err := p.Apply(envs[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not after high-water mark 2")
}

func TestApply_UnknownEventType(t *testing.T) {
	p := New()
	env := ir.EventEnvelope{
		Event:          ir.Event{ID: "e1", Type: "NodeRenamed", Data: []byte(`{}`)},
		SequenceNumber: 1,
	}

	err := p.Apply(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
	_, ok := p.SequenceNumber()
	assert.False(t, ok, "failed apply must not advance hwm")
}

func TestReset(t *testing.T) {
	p := New()
	require.NoError(t, p.ApplyAll(stream(t, add("a", "root"), add("b", "a"))))

	p.Reset()

	assert.Nil(t, p.FindNode("a"))
	assert.Empty(t, p.Root().Children)
	assert.Equal(t, ir.SequenceNumber(0), p.After())
	assert.Equal(t, "Tree ():\nroot (1)\n", p.String())
}

func TestReplay_Idempotent(t *testing.T) {
	envs := stream(t,
		add("a", "root"), add("b", "root"), add("c", "a"),
		move("c", "b"), move("a", "c"), add("d", "a"), move("b", "d"),
	)
	p := New()
	require.NoError(t, p.ApplyAll(envs))
	first := p.String()

	p.Reset()
	require.NoError(t, p.ApplyAll(envs))
	assert.Equal(t, first, p.String())
}

func TestFindNode_BreadthFirst(t *testing.T) {
	p := New()
	require.NoError(t, p.ApplyAll(stream(t, add("a", "root"), add("b", "a"), add("c", "root"))))

	assert.Same(t, p.Root(), p.FindNode("root"))
	assert.Equal(t, "c", p.FindNode("c").ID)
	assert.Nil(t, p.FindNode("zz"))
}

func TestAncestorIDs(t *testing.T) {
	p := New()
	require.NoError(t, p.ApplyAll(stream(t, add("a", "root"), add("b", "root"), add("c", "a"), move("a", "b"))))

	ids, highest := p.FindNode("c").AncestorIDs()
	assert.Equal(t, []string{"c", "a", "b", "root"}, ids)
	assert.Equal(t, ir.SequenceNumber(4), highest)

	ids, highest = p.Root().AncestorIDs()
	assert.Equal(t, []string{"root"}, ids)
	assert.Equal(t, ir.SequenceNumber(1), highest)
}

func TestString(t *testing.T) {
	p := New()
	require.NoError(t, p.ApplyAll(stream(t, add("a", "root"), add("b", "a"), add("c", "root"))))

	want := "Tree (3):\n" +
		"root (1)\n" +
		"  a (1)\n" +
		"    b (2)\n" +
		"  c (3)\n"
	assert.Equal(t, want, p.String())
}
