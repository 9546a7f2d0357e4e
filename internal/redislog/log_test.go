package redislog_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwaidelich/dcb-example-tree/internal/eventlog"
	"github.com/bwaidelich/dcb-example-tree/internal/eventlog/logtest"
	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
	"github.com/bwaidelich/dcb-example-tree/internal/redislog"
)

func newTestLog(t *testing.T, opts ...redislog.Option) (*redislog.Log, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	l := redislog.NewFromClient(client, opts...)
	t.Cleanup(func() { l.Close() })
	require.NoError(t, l.Setup(context.Background()))
	return l, mr
}

func TestRedisLog_Contract(t *testing.T) {
	logtest.RunContract(t, func(t *testing.T) eventlog.Log {
		l, _ := newTestLog(t)
		return l
	})
}

func TestRedisLog_KeysUsePrefix(t *testing.T) {
	l, mr := newTestLog(t, redislog.WithPrefix("test:"))

	e, err := ir.NewEvent(ir.NodeAdded{ID: "a", ParentID: "root"})
	require.NoError(t, err)
	require.NoError(t, l.Append(context.Background(), []ir.Event{e}, nil))

	assert.True(t, mr.Exists("test:events"))
	assert.True(t, mr.Exists("test:ids"))
	head, err := mr.Get("test:head")
	require.NoError(t, err)
	assert.Equal(t, "1", head)
	assert.False(t, mr.Exists(redislog.DefaultPrefix+"events"))
}

func TestRedisLog_DuplicateEventID(t *testing.T) {
	l, _ := newTestLog(t)
	ctx := context.Background()

	e, err := ir.NewEvent(ir.NodeAdded{ID: "a", ParentID: "root"})
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, []ir.Event{e}, nil))

	err = l.Append(ctx, []ir.Event{e}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate event id")

	envs, err := l.Read(ctx, queryir.Wildcard(), 0)
	require.NoError(t, err)
	assert.Len(t, envs, 1)
}

func TestRedisLog_SharedServer(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	first := redislog.New(mr.Addr())
	defer first.Close()
	second := redislog.New(mr.Addr())
	defer second.Close()

	cond := &queryir.AppendCondition{
		Query: queryir.New(queryir.TypesAndTags(
			[]ir.EventType{ir.EventTypeNodeAdded}, ir.NewTag(ir.TagKeyID, "a"))),
	}

	e1, err := ir.NewEvent(ir.NodeAdded{ID: "a", ParentID: "root"})
	require.NoError(t, err)
	require.NoError(t, first.Append(ctx, []ir.Event{e1}, cond))

	e2, err := ir.NewEvent(ir.NodeAdded{ID: "a", ParentID: "root"})
	require.NoError(t, err)
	assert.ErrorIs(t, second.Append(ctx, []ir.Event{e2}, cond), eventlog.ErrAppendConditionFailed)
}

func TestRedisLog_SetupFailsWhenUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	l := redislog.New(addr)
	defer l.Close()
	assert.Error(t, l.Setup(context.Background()))
}
