package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"NYCU-SDC/workflow-editor-backend/internal"

	"go.uber.org/zap"
)

const ExportFileName = "workflow.json"

// DecodeFile parses the full text of an imported file. Any JSON that decodes
// into a workflow is accepted; there is no schema validation beyond that.
func DecodeFile(r io.Reader) (Workflow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Workflow{}, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var w Workflow
	err = json.Unmarshal(data, &w)
	if err != nil {
		return Workflow{}, fmt.Errorf("%w: %v", internal.ErrInvalidWorkflowFile, err)
	}
	return w, nil
}

// Import commits the workflow read from r. A file that does not parse leaves the state untouched.
func (s *Store) Import(ctx context.Context, r io.Reader) error {
	s.mustBeReady()
	ctx, span, logger := s.start(ctx, "Import")
	defer span.End()

	imported, err := DecodeFile(r)
	if err != nil {
		logger.Warn("Rejected workflow file", zap.Error(err))
		span.RecordError(err)
		return err
	}

	err = s.SetWorkflow(ctx, imported)
	if err != nil {
		span.RecordError(err)
		return err
	}

	logger.Info("Workflow imported", zap.Int("nodes", len(imported.Nodes)), zap.Int("edges", len(imported.Edges)))
	return nil
}

// ImportAsync runs Import as a single-shot task. The returned channel yields
// exactly one result and is then closed. Cancelling ctx before the file has
// been read leaves the state untouched.
func (s *Store) ImportAsync(ctx context.Context, r io.Reader) <-chan error {
	s.mustBeReady()

	result := make(chan error, 1)
	go func() {
		defer close(result)

		imported, err := DecodeFile(r)
		if err != nil {
			result <- err
			return
		}

		if ctx.Err() != nil {
			result <- fmt.Errorf("%w: %v", internal.ErrImportCancelled, ctx.Err())
			return
		}

		result <- s.SetWorkflow(ctx, imported)
	}()

	return result
}

// Export writes the canonical workflow as two-space indented JSON
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	s.mustBeReady()
	_, span, logger := s.start(ctx, "Export")
	defer span.End()

	current := s.Workflow()
	if current.Nodes == nil {
		current.Nodes = []Node{}
	}
	if current.Edges == nil {
		current.Edges = []Edge{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	err := encoder.Encode(current)
	if err != nil {
		logger.Error("Failed to export workflow", zap.Error(err))
		span.RecordError(err)
		return fmt.Errorf("failed to export workflow: %w", err)
	}

	return nil
}
