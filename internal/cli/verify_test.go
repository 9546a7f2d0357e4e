package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwaidelich/dcb-example-tree/internal/eventlog"
	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/store"
	"github.com/bwaidelich/dcb-example-tree/internal/testutil"
)

func TestVerify_ValidLog(t *testing.T) {
	db := tempDB(t)
	for _, target := range []string{"root.a", "a.b"} {
		_, err := execute(t, "add", target, "--db", db)
		require.NoError(t, err)
	}

	out, err := execute(t, "verify", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "✓ 2 events replayed, 3 nodes\nroot\n  a\n    b\n", out)
}

func TestVerify_InvalidLog(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)

	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.Setup(ctx))
	// Unconditional appends bypass the engine's checks.
	require.NoError(t, testutil.AppendPayloads(ctx, st,
		ir.NodeAdded{ID: "a", ParentID: ir.RootNodeID},
		ir.NodeAdded{ID: "a", ParentID: ir.RootNodeID},
	))
	require.NoError(t, st.Close())

	out, err := execute(t, "verify", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ event log is invalid: validation failed at event 2")

	out, err = execute(t, "verify", "--db", db, "--format", "json")
	require.Error(t, err)
	resp := decodeResponse(t, out)
	data := resp.Data.(map[string]any)
	assert.Equal(t, false, data["valid"])
	assert.EqualValues(t, 2, data["failed_at"])
	assert.EqualValues(t, 2, data["events"])
}

func TestVerifyLog_Memory(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemory()
	require.NoError(t, testutil.AppendPayloads(ctx, log,
		ir.NodeAdded{ID: "a", ParentID: ir.RootNodeID},
		ir.NodeMoved{ID: ir.RootNodeID, NewParentID: "a"},
	))

	result, err := verifyLog(ctx, log)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.EqualValues(t, 2, result.FailedAt)
	assert.Equal(t, 2, result.Nodes)
}
