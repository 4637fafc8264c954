package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"NYCU-SDC/workflow-editor-backend/internal"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultPersistenceKey = "workflow"

// Persister is the single string-keyed slot the store syncs the workflow to
type Persister interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Serializer turns a workflow into the bytes stored in the slot and back
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte, v interface{}) error
}

type jsonSerializer struct{}

func (jsonSerializer) Serialize(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonSerializer) Deserialize(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// State is a consistent view of the workflow and the history flags
type State struct {
	Workflow Workflow `json:"workflow"`
	CanUndo  bool     `json:"canUndo"`
	CanRedo  bool     `json:"canRedo"`
}

type commitOptions struct {
	suppressSaveOnce bool
}

type CommitOption func(*commitOptions)

// SuppressSaveOnce skips the persistence sync that follows this commit
func SuppressSaveOnce() CommitOption {
	return func(o *commitOptions) {
		o.suppressSaveOnce = true
	}
}

// Store owns the canonical workflow and its undo/redo history. All reads and
// writes go through its methods; a mutex keeps a single writer at a time.
type Store struct {
	logger *zap.Logger
	tracer trace.Tracer

	persister  Persister
	serializer Serializer
	key        string
	ready      bool

	mu               sync.Mutex
	current          Workflow
	history          History
	suppressNextSave bool
}

// NewStore boots the store from the persistence slot, falling back to the
// sample workflow when the slot is empty or cannot be decoded. The initial
// workflow is synced back to the slot.
func NewStore(ctx context.Context, logger *zap.Logger, persister Persister, serializer Serializer, key string) (*Store, error) {
	if serializer == nil {
		serializer = jsonSerializer{}
	}
	if key == "" {
		key = DefaultPersistenceKey
	}

	s := &Store{
		logger:     logger,
		tracer:     otel.Tracer("workflow/store"),
		persister:  persister,
		serializer: serializer,
		key:        key,
	}

	ctx, span := s.tracer.Start(internal.WithPersistenceKey(ctx, key), "NewStore")
	defer span.End()
	logger = internal.WithContext(ctx, s.logger)

	initial, err := s.readSlot(ctx)
	switch {
	case err == nil:
		logger.Info("Restored workflow from persistence", zap.Int("nodes", len(initial.Nodes)), zap.Int("edges", len(initial.Edges)))
	case errors.Is(err, internal.ErrSlotNotFound):
		logger.Info("No persisted workflow found, starting from the sample workflow")
		initial = SampleWorkflow()
	case errors.Is(err, internal.ErrCorruptSnapshot):
		logger.Warn("Persisted workflow is unreadable, starting from the sample workflow", zap.Error(err))
		initial = SampleWorkflow()
	default:
		span.RecordError(err)
		return nil, err
	}

	s.current = initial
	s.ready = true

	err = s.sync(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return s, nil
}

func (s *Store) mustBeReady() {
	if s == nil || !s.ready {
		panic(internal.ErrStoreNotInitialized)
	}
}

func (s *Store) start(ctx context.Context, name string) (context.Context, trace.Span, *zap.Logger) {
	ctx, span := s.tracer.Start(internal.WithPersistenceKey(ctx, s.key), name)
	return ctx, span, internal.WithContext(ctx, s.logger)
}

// Workflow returns a copy of the canonical workflow
func (s *Store) Workflow() Workflow {
	s.mustBeReady()
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current.Clone()
}

// Snapshot returns the workflow together with the undo/redo flags, read under one lock
func (s *Store) Snapshot() State {
	s.mustBeReady()
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Workflow: s.current.Clone(),
		CanUndo:  s.history.CanUndo(),
		CanRedo:  s.history.CanRedo(),
	}
}

func (s *Store) CanUndo() bool {
	s.mustBeReady()
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.history.CanUndo()
}

func (s *Store) CanRedo() bool {
	s.mustBeReady()
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.history.CanRedo()
}

// SetWorkflow commits next as the canonical workflow. The superseded workflow
// is pushed on the undo stack and the redo stack is cleared.
func (s *Store) SetWorkflow(ctx context.Context, next Workflow, opts ...CommitOption) error {
	s.mustBeReady()
	ctx, span, _ := s.start(ctx, "SetWorkflow")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.commit(ctx, next.Clone(), opts...)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// UpdateNode merges update into the node with the given id. Unknown ids are a no-op.
func (s *Store) UpdateNode(ctx context.Context, nodeID string, update NodeUpdate) error {
	s.mustBeReady()
	ctx, span, logger := s.start(ctx, "UpdateNode")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	matched := false
	for i, n := range next.Nodes {
		if n.ID == nodeID {
			next.Nodes[i] = update.Apply(n)
			matched = true
		}
	}
	if !matched {
		logger.Debug("Update skipped, node not found", zap.String("node_id", nodeID))
		return nil
	}

	err := s.commit(ctx, next)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// MoveNode applies a drag-completion event
func (s *Store) MoveNode(ctx context.Context, nodeID string, position Position) error {
	return s.UpdateNode(ctx, nodeID, NodeUpdate{Position: &position})
}

// AddNode appends node. The caller supplies a unique id.
func (s *Store) AddNode(ctx context.Context, node Node) error {
	s.mustBeReady()
	ctx, span, _ := s.start(ctx, "AddNode")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	next.Nodes = append(next.Nodes, node.Clone())

	err := s.commit(ctx, next)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// DeleteNode removes the node and every edge touching it in one commit. Unknown ids are a no-op.
func (s *Store) DeleteNode(ctx context.Context, nodeID string) error {
	s.mustBeReady()
	ctx, span, logger := s.start(ctx, "DeleteNode")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.current.Node(nodeID); !ok {
		logger.Debug("Delete skipped, node not found", zap.String("node_id", nodeID))
		return nil
	}

	err := s.commit(ctx, withoutNode(s.current, nodeID))
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Connect appends an edge from source to target. Endpoints are not checked,
// matching the tolerance for dangling edges everywhere else.
func (s *Store) Connect(ctx context.Context, source, target, condition string) (Edge, error) {
	s.mustBeReady()
	ctx, span, _ := s.start(ctx, "Connect")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	edge := Edge{
		ID:        nextEdgeID(s.current),
		Source:    source,
		Target:    target,
		Condition: condition,
	}

	next := s.current.Clone()
	next.Edges = append(next.Edges, edge)

	err := s.commit(ctx, next)
	if err != nil {
		span.RecordError(err)
	}
	return edge, err
}

// nextEdgeID numbers edges "e<n>" starting after the current edge count
func nextEdgeID(w Workflow) string {
	for n := len(w.Edges) + 1; ; n++ {
		id := "e" + strconv.Itoa(n)
		if !w.hasEdge(id) {
			return id
		}
	}
}

// Subtree returns the downstream closure of nodeID in the canonical workflow
func (s *Store) Subtree(nodeID string) Workflow {
	s.mustBeReady()
	s.mu.Lock()
	defer s.mu.Unlock()

	return Subtree(nodeID, s.current.Nodes, s.current.Edges)
}

// CopySubtree appends a copy of the subtree rooted at nodeID and returns the new nodes and edges
func (s *Store) CopySubtree(ctx context.Context, nodeID string, opts ...CopyOption) (Workflow, error) {
	s.mustBeReady()
	ctx, span, logger := s.start(ctx, "CopySubtree")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := CopySubtree(nodeID, s.current.Nodes, s.current.Edges, opts...)
	if len(copied.Nodes) == 0 {
		logger.Debug("Copy skipped, node not found", zap.String("node_id", nodeID))
		return copied, nil
	}

	next := s.current.Clone()
	next.Nodes = append(next.Nodes, copied.Nodes...)
	next.Edges = append(next.Edges, copied.Edges...)

	err := s.commit(ctx, next)
	if err != nil {
		span.RecordError(err)
	}
	return copied.Clone(), err
}

// DeleteSubtree removes the subtree rooted at nodeID. Unknown ids are a no-op.
func (s *Store) DeleteSubtree(ctx context.Context, nodeID string) error {
	s.mustBeReady()
	ctx, span, logger := s.start(ctx, "DeleteSubtree")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.current.Node(nodeID); !ok {
		logger.Debug("Subtree delete skipped, node not found", zap.String("node_id", nodeID))
		return nil
	}

	err := s.commit(ctx, DeleteSubtree(nodeID, s.current.Nodes, s.current.Edges))
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ResetWorkflow replaces the workflow with the sample graph and persists it immediately
func (s *Store) ResetWorkflow(ctx context.Context) error {
	s.mustBeReady()
	ctx, span, _ := s.start(ctx, "ResetWorkflow")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	sample := SampleWorkflow()
	err := s.commit(ctx, sample)
	if err != nil {
		span.RecordError(err)
		return err
	}

	err = s.writeSlot(ctx, sample)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ClearWorkflow empties the graph without persisting the empty state, then
// erases the slot so the next boot starts from the sample workflow.
func (s *Store) ClearWorkflow(ctx context.Context) error {
	s.mustBeReady()
	ctx, span, logger := s.start(ctx, "ClearWorkflow")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.commit(ctx, Empty(), SuppressSaveOnce())
	if err != nil {
		span.RecordError(err)
		return err
	}

	err = s.persister.Delete(ctx, s.key)
	if err != nil && !errors.Is(err, internal.ErrSlotNotFound) {
		logger.Error("Failed to erase persisted workflow", zap.Error(err))
		span.RecordError(err)
		return fmt.Errorf("failed to erase persisted workflow: %w", err)
	}

	logger.Info("Workflow cleared and persisted entry erased")
	return nil
}

// SaveWorkflow writes the canonical workflow to the slot unconditionally
func (s *Store) SaveWorkflow(ctx context.Context) error {
	s.mustBeReady()
	ctx, span, _ := s.start(ctx, "SaveWorkflow")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.writeSlot(ctx, s.current)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// LoadWorkflow commits the persisted workflow, if any, through the undo-tracked path
func (s *Store) LoadWorkflow(ctx context.Context) error {
	s.mustBeReady()
	ctx, span, logger := s.start(ctx, "LoadWorkflow")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := s.readSlot(ctx)
	if errors.Is(err, internal.ErrSlotNotFound) {
		logger.Debug("Load skipped, no persisted workflow")
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	err = s.commit(ctx, loaded)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Undo restores the most recent snapshot. It bypasses the commit path but
// still syncs to persistence, like any other change of the workflow.
func (s *Store) Undo(ctx context.Context) error {
	s.mustBeReady()
	ctx, span, _ := s.start(ctx, "Undo")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.history.Undo(s.current)
	if !ok {
		return nil
	}
	s.current = previous
	historyMovesTotal.WithLabelValues("undo").Inc()
	observeHistory(&s.history)

	err := s.sync(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Redo re-applies the next snapshot from the redo stack
func (s *Store) Redo(ctx context.Context) error {
	s.mustBeReady()
	ctx, span, _ := s.start(ctx, "Redo")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.history.Redo(s.current)
	if !ok {
		return nil
	}
	s.current = next
	historyMovesTotal.WithLabelValues("redo").Inc()
	observeHistory(&s.history)

	err := s.sync(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// commit is the single mutation path. The caller holds s.mu and hands over
// ownership of next.
func (s *Store) commit(ctx context.Context, next Workflow, opts ...CommitOption) error {
	var options commitOptions
	for _, opt := range opts {
		opt(&options)
	}

	if options.suppressSaveOnce {
		s.suppressNextSave = true
	}

	s.history.Record(s.current)
	s.current = next

	commitsTotal.Inc()
	observeHistory(&s.history)

	return s.sync(ctx)
}

// sync runs after every change of the canonical workflow. A pending
// suppress-once flag swallows exactly one sync and is then cleared.
func (s *Store) sync(ctx context.Context) error {
	if s.suppressNextSave {
		s.suppressNextSave = false
		persistenceSyncsTotal.WithLabelValues("skipped").Inc()
		internal.WithContext(ctx, s.logger).Debug("Persistence sync skipped once")
		return nil
	}

	return s.writeSlot(ctx, s.current)
}

func (s *Store) writeSlot(ctx context.Context, w Workflow) error {
	logger := internal.WithContext(ctx, s.logger)

	data, err := s.serializer.Serialize(w)
	if err != nil {
		persistenceSyncsTotal.WithLabelValues("failed").Inc()
		logger.Error("Failed to serialize workflow", zap.Error(err))
		return fmt.Errorf("failed to serialize workflow: %w", err)
	}

	err = s.persister.Set(ctx, s.key, data)
	if err != nil {
		persistenceSyncsTotal.WithLabelValues("failed").Inc()
		logger.Error("Failed to persist workflow", zap.Error(err))
		return fmt.Errorf("failed to persist workflow: %w", err)
	}

	persistenceSyncsTotal.WithLabelValues("written").Inc()
	logger.Debug("Workflow persisted", zap.Int("bytes", len(data)))
	return nil
}

func (s *Store) readSlot(ctx context.Context) (Workflow, error) {
	data, err := s.persister.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, internal.ErrSlotNotFound) {
			return Workflow{}, err
		}
		return Workflow{}, fmt.Errorf("failed to read persisted workflow: %w", err)
	}

	var w Workflow
	err = s.serializer.Deserialize(data, &w)
	if err != nil {
		return Workflow{}, fmt.Errorf("%w: %v", internal.ErrCorruptSnapshot, err)
	}
	return w, nil
}
