package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bwaidelich/dcb-example-tree/internal/eventlog"
	"github.com/bwaidelich/dcb-example-tree/internal/ir"
	"github.com/bwaidelich/dcb-example-tree/internal/logging"
	"github.com/bwaidelich/dcb-example-tree/internal/projection"
	"github.com/bwaidelich/dcb-example-tree/internal/queryir"
)

// Engine decides tree commands against a shared event log.
//
// The projection is a private best-effort cache; it is never consulted for
// concurrency decisions beyond supplying the ancestor chains of a move.
//
// Thread-safety: methods may be called from multiple goroutines; they
// serialize on the projection. Separate Engines on the same log are the
// intended way to run concurrent writers.
type Engine struct {
	log     eventlog.Log
	logger  *slog.Logger
	metrics *Metrics

	mu         sync.Mutex
	projection *projection.HierarchyProjection
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics collectors. Default records nothing.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New provisions the log and brings a fresh projection up to date.
func New(ctx context.Context, log eventlog.Log, opts ...Option) (*Engine, error) {
	e := &Engine{
		log:        log,
		logger:     logging.NewNop(),
		projection: projection.New(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := log.Setup(ctx); err != nil {
		return nil, fmt.Errorf("setup event log: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.updateLocked(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// AddNode attaches a new node id below parentID.
//
// The boundary is every NodeAdded event for id or parentID: the only events
// that can make the node a duplicate or bring the parent into existence.
func (e *Engine) AddNode(ctx context.Context, id, parentID string) (err error) {
	start := time.Now()
	defer func() { e.metrics.observe("add", start, err) }()

	id, parentID = ir.NormalizeID(id), ir.NormalizeID(parentID)
	if id == "" || parentID == "" {
		return addError(ErrCodeInvalidID, id, parentID, "node ids must not be empty")
	}
	if id == parentID {
		return addError(ErrCodeSelfParent, id, parentID, "that id must not be equal to parent node id")
	}

	added := []ir.EventType{ir.EventTypeNodeAdded}
	query := queryir.New(
		queryir.TypesAndTags(added, ir.NewTag(ir.TagKeyID, id)),
		queryir.TypesAndTags(added, ir.NewTag(ir.TagKeyID, parentID)),
	)
	envs, err := e.log.Read(ctx, query, 0)
	if err != nil {
		return fmt.Errorf("read add boundary: %w", err)
	}

	var highest ir.SequenceNumber
	nodeExists := id == ir.RootNodeID
	parentExists := parentID == ir.RootNodeID
	for _, env := range envs {
		highest = env.SequenceNumber
		if env.Event.Type != ir.EventTypeNodeAdded {
			continue
		}
		payload, err := ir.DecodePayload(env.Event)
		if err != nil {
			return fmt.Errorf("event %d: %w", env.SequenceNumber, err)
		}
		switch payload.(ir.NodeAdded).ID {
		case id:
			nodeExists = true
		case parentID:
			parentExists = true
		}
	}

	e.logger.Debug("add node decision",
		"id", id,
		"parent_id", parentID,
		"boundary_events", len(envs),
		"highest_seq", highest,
	)

	if nodeExists {
		return addError(ErrCodeDuplicateNode, id, parentID, "a node with that id already exists")
	}
	if !parentExists {
		return addError(ErrCodeMissingParent, id, parentID, fmt.Sprintf("parent node '%s' does not exist", parentID))
	}

	return e.append(ctx, ir.NodeAdded{
		ID:                    id,
		ParentID:              parentID,
		HighestSequenceNumber: highest,
	}, queryir.AppendCondition{Query: query, HighestSequenceNumber: highest})
}

// MoveNode re-attaches node id below newParentID.
//
// The boundary is every event tagged with an id on the node's current
// ancestor chain or on the new parent's chain. Any such event could change
// who is whose ancestor.
func (e *Engine) MoveNode(ctx context.Context, id, newParentID string) (err error) {
	start := time.Now()
	defer func() { e.metrics.observe("move", start, err) }()

	id, newParentID = ir.NormalizeID(id), ir.NormalizeID(newParentID)
	if id == newParentID {
		return moveError(ErrCodeSelfParent, id, newParentID, "the id must not be equal to new parent node id")
	}
	if id == ir.RootNodeID {
		return moveError(ErrCodeRootImmovable, id, newParentID, "the root node must not be moved")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.updateLocked(ctx); err != nil {
		return err
	}

	node := e.projection.FindNode(id)
	if node == nil {
		return moveError(ErrCodeMissingNode, id, newParentID, "the node to move does not exist")
	}
	newParent := e.projection.FindNode(newParentID)
	if newParent == nil {
		return moveError(ErrCodeMissingParent, id, newParentID, "the new parent node does not exist")
	}
	if node.Parent == nil {
		return moveError(ErrCodeNoParent, id, newParentID, "the node to move has no parent node")
	}
	if node.Parent.ID == newParentID {
		return moveError(ErrCodeAlreadyParent, id, newParentID, "that is already the parent node")
	}

	newAncestors, newHighest := newParent.AncestorIDs()
	if slices.Contains(newAncestors, id) {
		return moveError(ErrCodeCycle, id, newParentID, "the new parent node is a descendant node of the node to move")
	}
	oldAncestors, oldHighest := node.AncestorIDs()
	highest := max(oldHighest, newHighest)

	query := moveBoundary(oldAncestors, newAncestors)

	e.logger.Debug("move node decision",
		"id", id,
		"new_parent_id", newParentID,
		"old_ancestors", oldAncestors,
		"new_ancestors", newAncestors,
		"highest_seq", highest,
	)

	return e.append(ctx, ir.NodeMoved{
		ID:                    id,
		NewParentID:           newParentID,
		OldAncestorNodeIDs:    oldAncestors,
		NewAncestorNodeIDs:    newAncestors,
		HighestSequenceNumber: highest,
	}, queryir.AppendCondition{Query: query, HighestSequenceNumber: highest})
}

// moveBoundary ORs one id tag criterion per distinct ancestor, old chain
// first.
func moveBoundary(oldAncestors, newAncestors []string) queryir.StreamQuery {
	seen := make(map[string]bool, len(oldAncestors)+len(newAncestors))
	var criteria []queryir.Criterion
	for _, ancestorID := range slices.Concat(oldAncestors, newAncestors) {
		if seen[ancestorID] {
			continue
		}
		seen[ancestorID] = true
		criteria = append(criteria, queryir.TaggedWith(ir.NewTag(ir.TagKeyID, ancestorID)))
	}
	return queryir.New(criteria...)
}

// append encodes payload and appends it under cond.
func (e *Engine) append(ctx context.Context, payload ir.Payload, cond queryir.AppendCondition) error {
	event, err := ir.NewEvent(payload)
	if err != nil {
		return err
	}

	err = e.log.Append(ctx, []ir.Event{event}, &cond)
	if errors.Is(err, eventlog.ErrAppendConditionFailed) {
		e.logger.Warn("append conflict",
			"type", event.Type,
			"condition", cond.String(),
			"err", err,
		)
		return conflictError(err)
	}
	if err != nil {
		return fmt.Errorf("append %s: %w", event.Type, err)
	}

	e.logger.Info("event appended",
		"type", event.Type,
		"event_id", event.ID,
		"tags", event.Tags,
	)
	return nil
}

// Reset truncates the log and empties the projection.
// Administrative: concurrent writers are not protected.
func (e *Engine) Reset(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { e.metrics.observe("reset", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.log.Truncate(ctx); err != nil {
		return fmt.Errorf("truncate event log: %w", err)
	}
	e.projection.Reset()
	e.logger.Info("tree reset")
	return nil
}

// Render brings the projection up to date and renders it.
func (e *Engine) Render(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.updateLocked(ctx); err != nil {
		return "", err
	}
	return e.projection.String(), nil
}

// NodeView is a read-only copy of a projected node.
type NodeView struct {
	ID             string            `json:"id"`
	SequenceNumber ir.SequenceNumber `json:"sequence_number"`
	Children       []NodeView        `json:"children,omitempty"`
}

// Snapshot is a read-only copy of the projection.
type Snapshot struct {
	SequenceNumber ir.SequenceNumber `json:"sequence_number"`
	Root           NodeView          `json:"root"`
}

// Snapshot brings the projection up to date and copies it.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.updateLocked(ctx); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		SequenceNumber: e.projection.After(),
		Root:           viewOf(e.projection.Root()),
	}, nil
}

func viewOf(n *projection.Node) NodeView {
	v := NodeView{ID: n.ID, SequenceNumber: n.SequenceNumber}
	for _, c := range n.Children {
		v.Children = append(v.Children, viewOf(c))
	}
	return v
}

// Parents brings the projection up to date and returns the parent id of
// every non-root node.
func (e *Engine) Parents(ctx context.Context) (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.updateLocked(ctx); err != nil {
		return nil, err
	}
	return e.projection.Parents(), nil
}

// updateLocked folds every event after the projection's high-water mark.
func (e *Engine) updateLocked(ctx context.Context) error {
	envs, err := e.log.Read(ctx, queryir.Wildcard(), e.projection.After())
	if err != nil {
		return fmt.Errorf("read event log: %w", err)
	}
	if err := e.projection.ApplyAll(envs); err != nil {
		return fmt.Errorf("update projection: %w", err)
	}
	return nil
}
