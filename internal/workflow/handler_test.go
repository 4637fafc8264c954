package workflow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"NYCU-SDC/workflow-editor-backend/internal"
	"NYCU-SDC/workflow-editor-backend/internal/workflow"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type connectResponse struct {
	Edge workflow.Edge `json:"edge"`
	workflow.State
}

type copyResponse struct {
	Copied workflow.Workflow `json:"copied"`
	workflow.State
}

func newTestServer(t *testing.T) (*http.ServeMux, *workflow.Store) {
	t.Helper()

	store := newTestStore(t, newCountingSlot())
	h := workflow.NewHandler(zap.NewNop(), internal.NewValidator(), internal.NewProblemWriter(), store)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/workflow", h.GetWorkflow)
	mux.HandleFunc("PUT /api/workflow", h.SetWorkflow)
	mux.HandleFunc("POST /api/workflow/nodes", h.AddNode)
	mux.HandleFunc("PATCH /api/workflow/nodes/{id}", h.UpdateNode)
	mux.HandleFunc("PUT /api/workflow/nodes/{id}/position", h.MoveNode)
	mux.HandleFunc("DELETE /api/workflow/nodes/{id}", h.DeleteNode)
	mux.HandleFunc("POST /api/workflow/edges", h.Connect)
	mux.HandleFunc("GET /api/workflow/nodes/{id}/subtree", h.GetSubtree)
	mux.HandleFunc("POST /api/workflow/nodes/{id}/subtree/copy", h.CopySubtree)
	mux.HandleFunc("DELETE /api/workflow/nodes/{id}/subtree", h.DeleteSubtree)
	mux.HandleFunc("POST /api/workflow/save", h.Save)
	mux.HandleFunc("POST /api/workflow/load", h.Load)
	mux.HandleFunc("POST /api/workflow/reset", h.Reset)
	mux.HandleFunc("POST /api/workflow/clear", h.Clear)
	mux.HandleFunc("POST /api/workflow/undo", h.Undo)
	mux.HandleFunc("POST /api/workflow/redo", h.Redo)
	mux.HandleFunc("GET /api/workflow/export", h.Export)
	mux.HandleFunc("POST /api/workflow/import", h.Import)

	return mux, store
}

func serve(t *testing.T, mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) workflow.State {
	t.Helper()

	var state workflow.State
	require.NoError(t, json.NewDecoder(w.Body).Decode(&state))
	return state
}

func TestHandler_GetWorkflow(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t)

	w := serve(t, mux, http.MethodGet, "/api/workflow", "")
	require.Equal(t, http.StatusOK, w.Code)

	state := decodeState(t, w)
	require.Equal(t, workflow.SampleWorkflow(), state.Workflow)
	require.False(t, state.CanUndo)
	require.False(t, state.CanRedo)
}

func TestHandler_AddNode(t *testing.T) {
	t.Parallel()

	type testCase struct {
		name           string
		body           string
		expectedStatus int
		validate       func(t *testing.T, added workflow.Node)
	}

	testCases := []testCase{
		{
			name:           "defaults are filled in",
			body:           `{"type":"action"}`,
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, added workflow.Node) {
				require.True(t, strings.HasPrefix(added.ID, "action_"))
				require.Equal(t, "New Action", added.Label)
				require.GreaterOrEqual(t, added.Position.X, 100.0)
				require.Less(t, added.Position.X, 500.0)
				require.GreaterOrEqual(t, added.Position.Y, 100.0)
				require.Less(t, added.Position.Y, 400.0)
				require.Nil(t, added.Config)
			},
		},
		{
			name:           "caller supplied fields are kept",
			body:           `{"id":"gate","type":"decision","label":"Gate","position":{"x":5,"y":6},"config":{"expression":"x > 1"}}`,
			expectedStatus: http.StatusCreated,
			validate: func(t *testing.T, added workflow.Node) {
				require.Equal(t, "gate", added.ID)
				require.Equal(t, "Gate", added.Label)
				require.Equal(t, workflow.Position{X: 5, Y: 6}, added.Position)
				require.Equal(t, workflow.StringValue("x > 1"), added.Config["expression"])
			},
		},
		{
			name:           "unknown type is rejected",
			body:           `{"type":"webhook"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing type is rejected",
			body:           `{"label":"Nameless"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mux, store := newTestServer(t)
			before := store.Workflow()

			w := serve(t, mux, http.MethodPost, "/api/workflow/nodes", tc.body)
			require.Equal(t, tc.expectedStatus, w.Code, w.Body.String())

			if tc.validate == nil {
				require.Equal(t, before, store.Workflow())
				require.False(t, store.CanUndo())
				return
			}

			state := decodeState(t, w)
			require.True(t, state.CanUndo)
			require.Len(t, state.Workflow.Nodes, len(before.Nodes)+1)
			tc.validate(t, state.Workflow.Nodes[len(state.Workflow.Nodes)-1])
		})
	}
}

func TestHandler_UpdateAndMoveNode(t *testing.T) {
	t.Parallel()

	mux, store := newTestServer(t)

	w := serve(t, mux, http.MethodPatch, "/api/workflow/nodes/action_1", `{"label":"Check Order","config":{"retries":2}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	updated, _ := store.Workflow().Node("action_1")
	require.Equal(t, "Check Order", updated.Label)
	require.Equal(t, map[string]workflow.ConfigValue{"retries": workflow.NumberValue(2)}, updated.Config)

	w = serve(t, mux, http.MethodPatch, "/api/workflow/nodes/action_1", `{"type":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, mux, http.MethodPut, "/api/workflow/nodes/action_1/position", `{"x":0,"y":12.5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	moved, _ := store.Workflow().Node("action_1")
	require.Equal(t, workflow.Position{X: 0, Y: 12.5}, moved.Position)

	w = serve(t, mux, http.MethodPut, "/api/workflow/nodes/action_1/position", `{"x":1}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, mux, http.MethodPatch, "/api/workflow/nodes/missing", `{"label":"ghost"}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_DeleteNodeAndConnect(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t)

	w := serve(t, mux, http.MethodDelete, "/api/workflow/nodes/action_3", "")
	require.Equal(t, http.StatusOK, w.Code)
	state := decodeState(t, w)
	require.Len(t, state.Workflow.Nodes, 5)
	require.Equal(t, []string{"e1", "e2", "e3", "e5"}, edgeIDs(state.Workflow.Edges))

	w = serve(t, mux, http.MethodPost, "/api/workflow/edges", `{"source":"decision_1","target":"terminal_1","condition":"no"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var connected connectResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&connected))
	require.Equal(t, workflow.Edge{ID: "e6", Source: "decision_1", Target: "terminal_1", Condition: "no"}, connected.Edge)
	require.Contains(t, connected.Workflow.Edges, connected.Edge)

	w = serve(t, mux, http.MethodPost, "/api/workflow/edges", `{"source":"decision_1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Subtree(t *testing.T) {
	t.Parallel()

	mux, store := newTestServer(t)

	w := serve(t, mux, http.MethodGet, "/api/workflow/nodes/action_2/subtree", "")
	require.Equal(t, http.StatusOK, w.Code)
	var subtree workflow.Workflow
	require.NoError(t, json.NewDecoder(w.Body).Decode(&subtree))
	require.Equal(t, []string{"action_2", "terminal_1"}, nodeIDs(subtree.Nodes))
	require.Equal(t, []string{"e5"}, edgeIDs(subtree.Edges))

	w = serve(t, mux, http.MethodPost, "/api/workflow/nodes/action_2/subtree/copy?offsetX=10&offsetY=-20", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var copied copyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&copied))
	require.Len(t, copied.Copied.Nodes, 2)
	require.Equal(t, workflow.Position{X: 860, Y: 80}, copied.Copied.Nodes[0].Position)
	require.Len(t, copied.Workflow.Nodes, 8)

	w = serve(t, mux, http.MethodPost, "/api/workflow/nodes/action_2/subtree/copy?offsetX=left", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, mux, http.MethodDelete, "/api/workflow/nodes/decision_1/subtree", "")
	require.Equal(t, http.StatusOK, w.Code)
	state := decodeState(t, w)

	// copies have no incoming edge from decision_1, so they are not reachable from it
	expected := append([]string{"start_1", "action_1"}, nodeIDs(copied.Copied.Nodes)...)
	require.Equal(t, expected, nodeIDs(state.Workflow.Nodes))

	_, ok := store.Workflow().Node("terminal_1")
	require.False(t, ok)
}

func TestHandler_HistoryAndPersistence(t *testing.T) {
	t.Parallel()

	mux, store := newTestServer(t)

	w := serve(t, mux, http.MethodPost, "/api/workflow/undo", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, decodeState(t, w).CanUndo)

	w = serve(t, mux, http.MethodPost, "/api/workflow/clear", "")
	require.Equal(t, http.StatusOK, w.Code)
	state := decodeState(t, w)
	require.Equal(t, workflow.Empty(), state.Workflow)
	require.True(t, state.CanUndo)

	// nothing persisted after clear, so load keeps the empty graph
	w = serve(t, mux, http.MethodPost, "/api/workflow/load", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, workflow.Empty(), decodeState(t, w).Workflow)

	w = serve(t, mux, http.MethodPost, "/api/workflow/undo", "")
	require.Equal(t, http.StatusOK, w.Code)
	state = decodeState(t, w)
	require.Equal(t, workflow.SampleWorkflow(), state.Workflow)
	require.True(t, state.CanRedo)

	w = serve(t, mux, http.MethodPost, "/api/workflow/redo", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, workflow.Empty(), decodeState(t, w).Workflow)

	w = serve(t, mux, http.MethodPost, "/api/workflow/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, workflow.SampleWorkflow(), store.Workflow())

	w = serve(t, mux, http.MethodPost, "/api/workflow/save", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_SetWorkflow(t *testing.T) {
	t.Parallel()

	mux, store := newTestServer(t)

	body, err := json.Marshal(chainGraph())
	require.NoError(t, err)

	w := serve(t, mux, http.MethodPut, "/api/workflow", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, chainGraph(), store.Workflow())
}

func TestHandler_Export(t *testing.T) {
	t.Parallel()

	mux, store := newTestServer(t)

	w := serve(t, mux, http.MethodGet, "/api/workflow/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename="workflow.json"`, w.Header().Get("Content-Disposition"))

	exported, err := workflow.DecodeFile(w.Body)
	require.NoError(t, err)
	require.Equal(t, store.Workflow(), exported)
}

func TestHandler_Import(t *testing.T) {
	t.Parallel()

	chain, err := json.Marshal(chainGraph())
	require.NoError(t, err)

	type testCase struct {
		name           string
		request        func(t *testing.T) *http.Request
		expectedStatus int
		expected       workflow.Workflow
	}

	testCases := []testCase{
		{
			name: "raw JSON body",
			request: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/workflow/import", bytes.NewReader(chain))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			expectedStatus: http.StatusOK,
			expected:       chainGraph(),
		},
		{
			name: "multipart upload",
			request: func(t *testing.T) *http.Request {
				var body bytes.Buffer
				writer := multipart.NewWriter(&body)
				part, err := writer.CreateFormFile("file", "workflow.json")
				require.NoError(t, err)
				_, err = part.Write(chain)
				require.NoError(t, err)
				require.NoError(t, writer.Close())

				req := httptest.NewRequest(http.MethodPost, "/api/workflow/import", &body)
				req.Header.Set("Content-Type", writer.FormDataContentType())
				return req
			},
			expectedStatus: http.StatusOK,
			expected:       chainGraph(),
		},
		{
			name: "malformed file",
			request: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/workflow/import", strings.NewReader(`{"nodes":`))
			},
			expectedStatus: http.StatusBadRequest,
			expected:       workflow.SampleWorkflow(),
		},
		{
			name: "multipart without a file field",
			request: func(t *testing.T) *http.Request {
				var body bytes.Buffer
				writer := multipart.NewWriter(&body)
				require.NoError(t, writer.WriteField("name", "workflow.json"))
				require.NoError(t, writer.Close())

				req := httptest.NewRequest(http.MethodPost, "/api/workflow/import", &body)
				req.Header.Set("Content-Type", writer.FormDataContentType())
				return req
			},
			expectedStatus: http.StatusBadRequest,
			expected:       workflow.SampleWorkflow(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mux, store := newTestServer(t)

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, tc.request(t))

			require.Equal(t, tc.expectedStatus, w.Code, w.Body.String())
			require.Equal(t, tc.expected, store.Workflow())
		})
	}
}

// committedAfterCancelEditor commits the import and only reports back once the
// request context is already done
type committedAfterCancelEditor struct {
	workflow.Editor
	cancel context.CancelFunc
}

func (e committedAfterCancelEditor) ImportAsync(ctx context.Context, r io.Reader) <-chan error {
	result := make(chan error, 1)
	go func() {
		defer close(result)
		e.cancel()
		<-ctx.Done()
		result <- nil
	}()
	return result
}

func (e committedAfterCancelEditor) Snapshot() workflow.State {
	return workflow.State{Workflow: chainGraph(), CanUndo: true}
}

func TestHandler_Import_ReportsTheTaskResult(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	editor := committedAfterCancelEditor{cancel: cancel}
	h := workflow.NewHandler(zap.NewNop(), internal.NewValidator(), internal.NewProblemWriter(), editor)

	req := httptest.NewRequest(http.MethodPost, "/api/workflow/import", strings.NewReader(`{"nodes":[],"edges":[]}`)).WithContext(ctx)
	w := httptest.NewRecorder()
	h.Import(w, req)

	require.Equal(t, http.StatusOK, w.Code, "a committed import is not reported as cancelled")
	state := decodeState(t, w)
	require.Equal(t, chainGraph(), state.Workflow)
}
