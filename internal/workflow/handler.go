package workflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"

	"NYCU-SDC/workflow-editor-backend/internal"

	handlerutil "github.com/NYCU-SDC/summer/pkg/handler"
	"github.com/NYCU-SDC/summer/pkg/problem"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	maxImportSizeBytes = 4 << 20
)

type Editor interface {
	Snapshot() State
	Subtree(nodeID string) Workflow
	SetWorkflow(ctx context.Context, next Workflow, opts ...CommitOption) error
	AddNode(ctx context.Context, node Node) error
	UpdateNode(ctx context.Context, nodeID string, update NodeUpdate) error
	MoveNode(ctx context.Context, nodeID string, position Position) error
	DeleteNode(ctx context.Context, nodeID string) error
	Connect(ctx context.Context, source, target, condition string) (Edge, error)
	CopySubtree(ctx context.Context, nodeID string, opts ...CopyOption) (Workflow, error)
	DeleteSubtree(ctx context.Context, nodeID string) error
	SaveWorkflow(ctx context.Context) error
	LoadWorkflow(ctx context.Context) error
	ResetWorkflow(ctx context.Context) error
	ClearWorkflow(ctx context.Context) error
	Undo(ctx context.Context) error
	Redo(ctx context.Context) error
	ImportAsync(ctx context.Context, r io.Reader) <-chan error
	Export(ctx context.Context, w io.Writer) error
}

type Handler struct {
	logger *zap.Logger
	tracer trace.Tracer

	validator     *validator.Validate
	problemWriter *problem.HttpWriter

	editor Editor
}

func NewHandler(
	logger *zap.Logger,
	validator *validator.Validate,
	problemWriter *problem.HttpWriter,
	editor Editor,
) *Handler {
	return &Handler{
		logger:        logger,
		tracer:        otel.Tracer("workflow/handler"),
		validator:     validator,
		problemWriter: problemWriter,
		editor:        editor,
	}
}

type addNodeRequest struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type" validate:"required,nodetype"`
	Label     string                 `json:"label"`
	Position  *Position              `json:"position"`
	Config    map[string]ConfigValue `json:"config"`
	Collapsed bool                   `json:"collapsed"`
}

type updateNodeRequest struct {
	Type      *string                `json:"type" validate:"omitempty,nodetype"`
	Label     *string                `json:"label"`
	Position  *Position              `json:"position"`
	Config    map[string]ConfigValue `json:"config"`
	Collapsed *bool                  `json:"collapsed"`
}

type moveNodeRequest struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
}

type connectRequest struct {
	Source    string `json:"source" validate:"required"`
	Target    string `json:"target" validate:"required"`
	Condition string `json:"condition"`
}

type connectResponse struct {
	Edge Edge `json:"edge"`
	State
}

type copySubtreeResponse struct {
	Copied Workflow `json:"copied"`
	State
}

// newNodeFromRequest fills the defaults the toolbar applies when a node is added
func newNodeFromRequest(req addNodeRequest) Node {
	node := Node{
		ID:        req.ID,
		Type:      NodeType(req.Type),
		Label:     req.Label,
		Config:    req.Config,
		Collapsed: req.Collapsed,
	}

	if node.ID == "" {
		node.ID = fmt.Sprintf("%s_%s", req.Type, uuid.NewString())
	}
	if node.Label == "" {
		node.Label = "New " + strings.ToUpper(req.Type[:1]) + req.Type[1:]
	}
	if req.Position != nil {
		node.Position = *req.Position
	} else {
		node.Position = Position{X: rand.Float64()*400 + 100, Y: rand.Float64()*300 + 100}
	}
	return node
}

func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "GetWorkflow")
	defer span.End()

	handlerutil.WriteJSONResponse(w, http.StatusOK, h.editor.Snapshot())
}

func (h *Handler) SetWorkflow(w http.ResponseWriter, r *http.Request) {
	traceCtx, span := h.tracer.Start(r.Context(), "SetWorkflow")
	defer span.End()
	logger := internal.WithContext(traceCtx, h.logger)

	var req Workflow
	err := handlerutil.ParseAndValidateRequestBody(traceCtx, h.validator, r, &req)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	err = h.editor.SetWorkflow(traceCtx, req)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	handlerutil.WriteJSONResponse(w, http.StatusOK, h.editor.Snapshot())
}

func (h *Handler) AddNode(w http.ResponseWriter, r *http.Request) {
	traceCtx, span := h.tracer.Start(r.Context(), "AddNode")
	defer span.End()
	logger := internal.WithContext(traceCtx, h.logger)

	var req addNodeRequest
	err := handlerutil.ParseAndValidateRequestBody(traceCtx, h.validator, r, &req)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	node := newNodeFromRequest(req)
	err = h.editor.AddNode(traceCtx, node)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	handlerutil.WriteJSONResponse(w, http.StatusCreated, h.editor.Snapshot())
}

func (h *Handler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	traceCtx, span := h.tracer.Start(r.Context(), "UpdateNode")
	defer span.End()
	logger := internal.WithContext(traceCtx, h.logger)

	nodeID := r.PathValue("id")

	var req updateNodeRequest
	err := handlerutil.ParseAndValidateRequestBody(traceCtx, h.validator, r, &req)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	update := NodeUpdate{
		Label:     req.Label,
		Position:  req.Position,
		Config:    req.Config,
		Collapsed: req.Collapsed,
	}
	if req.Type != nil {
		nodeType := NodeType(*req.Type)
		update.Type = &nodeType
	}

	err = h.editor.UpdateNode(traceCtx, nodeID, update)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	handlerutil.WriteJSONResponse(w, http.StatusOK, h.editor.Snapshot())
}

func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	traceCtx, span := h.tracer.Start(r.Context(), "MoveNode")
	defer span.End()
	logger := internal.WithContext(traceCtx, h.logger)

	nodeID := r.PathValue("id")

	var req moveNodeRequest
	err := handlerutil.ParseAndValidateRequestBody(traceCtx, h.validator, r, &req)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	err = h.editor.MoveNode(traceCtx, nodeID, Position{X: *req.X, Y: *req.Y})
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	handlerutil.WriteJSONResponse(w, http.StatusOK, h.editor.Snapshot())
}

func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	traceCtx, span := h.tracer.Start(r.Context(), "DeleteNode")
	defer span.End()
	logger := internal.WithContext(traceCtx, h.logger)

	err := h.editor.DeleteNode(traceCtx, r.PathValue("id"))
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	handlerutil.WriteJSONResponse(w, http.StatusOK, h.editor.Snapshot())
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	traceCtx, span := h.tracer.Start(r.Context(), "Connect")
	defer span.End()
	logger := internal.WithContext(traceCtx, h.logger)

	var req connectRequest
	err := handlerutil.ParseAndValidateRequestBody(traceCtx, h.validator, r, &req)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	edge, err := h.editor.Connect(traceCtx, req.Source, req.Target, req.Condition)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	handlerutil.WriteJSONResponse(w, http.StatusCreated, connectResponse{
		Edge:  edge,
		State: h.editor.Snapshot(),
	})
}

func (h *Handler) GetSubtree(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "GetSubtree")
	defer span.End()

	handlerutil.WriteJSONResponse(w, http.StatusOK, h.editor.Subtree(r.PathValue("id")))
}

func (h *Handler) CopySubtree(w http.ResponseWriter, r *http.Request) {
	traceCtx, span := h.tracer.Start(r.Context(), "CopySubtree")
	defer span.End()
	logger := internal.WithContext(traceCtx, h.logger)

	offsetX, err := parseOffset(r, "offsetX", DefaultCopyOffsetX)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}
	offsetY, err := parseOffset(r, "offsetY", DefaultCopyOffsetY)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	copied, err := h.editor.CopySubtree(traceCtx, r.PathValue("id"), WithOffset(offsetX, offsetY))
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	handlerutil.WriteJSONResponse(w, http.StatusOK, copySubtreeResponse{
		Copied: copied,
		State:  h.editor.Snapshot(),
	})
}

func parseOffset(r *http.Request, name string, fallback float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", internal.ErrValidationFailed, name)
	}
	return value, nil
}

func (h *Handler) DeleteSubtree(w http.ResponseWriter, r *http.Request) {
	traceCtx, span := h.tracer.Start(r.Context(), "DeleteSubtree")
	defer span.End()
	logger := internal.WithContext(traceCtx, h.logger)

	err := h.editor.DeleteSubtree(traceCtx, r.PathValue("id"))
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	handlerutil.WriteJSONResponse(w, http.StatusOK, h.editor.Snapshot())
}

// action adapts a store operation without a request body into a handler
func (h *Handler) action(name string, op func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceCtx, span := h.tracer.Start(r.Context(), name)
		defer span.End()
		logger := internal.WithContext(traceCtx, h.logger)

		err := op(traceCtx)
		if err != nil {
			h.problemWriter.WriteError(traceCtx, w, err, logger)
			return
		}

		handlerutil.WriteJSONResponse(w, http.StatusOK, h.editor.Snapshot())
	}
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	h.action("Save", h.editor.SaveWorkflow)(w, r)
}

func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	h.action("Load", h.editor.LoadWorkflow)(w, r)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.action("Reset", h.editor.ResetWorkflow)(w, r)
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.action("Clear", h.editor.ClearWorkflow)(w, r)
}

func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	h.action("Undo", h.editor.Undo)(w, r)
}

func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	h.action("Redo", h.editor.Redo)(w, r)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	traceCtx, span := h.tracer.Start(r.Context(), "Export")
	defer span.End()
	logger := internal.WithContext(traceCtx, h.logger)

	var buf bytes.Buffer
	err := h.editor.Export(traceCtx, &buf)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ExportFileName))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(buf.Bytes())
	if err != nil {
		logger.Error("Failed to write export response", zap.Error(err))
	}
}

// Import accepts either a multipart upload in the "file" field or a raw JSON body
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	traceCtx, span := h.tracer.Start(r.Context(), "Import")
	defer span.End()
	logger := internal.WithContext(traceCtx, h.logger)

	data, err := readImportPayload(r)
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	// the import task reports cancellation itself, once it knows whether it committed
	err = <-h.editor.ImportAsync(traceCtx, bytes.NewReader(data))
	if err != nil {
		h.problemWriter.WriteError(traceCtx, w, err, logger)
		return
	}

	handlerutil.WriteJSONResponse(w, http.StatusOK, h.editor.Snapshot())
}

func readImportPayload(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImportSizeBytes); err != nil {
			return nil, fmt.Errorf("%w: %v", internal.ErrInvalidWorkflowFile, err)
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", internal.ErrInvalidWorkflowFile, err)
		}
		defer file.Close()

		return readLimited(file)
	}

	return readLimited(r.Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImportSizeBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxImportSizeBytes {
		return nil, fmt.Errorf("%w: workflow file exceeds %d bytes", internal.ErrInvalidWorkflowFile, maxImportSizeBytes)
	}
	return data, nil
}
