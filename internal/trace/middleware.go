package trace

import (
	"net/http"

	"NYCU-SDC/workflow-editor-backend/internal"

	traceutil "github.com/NYCU-SDC/summer/pkg/trace"
	"go.uber.org/zap"
)

// RequestSourceHeader names the editor collaborator (toolbar, canvas, drawer, shortcut) issuing the request
const RequestSourceHeader = "X-Request-Source"

type Middleware struct {
	logger *zap.Logger
	debug  bool
}

func NewMiddleware(logger *zap.Logger, debug bool) *Middleware {
	return &Middleware{
		logger: logger,
		debug:  debug,
	}
}

func (m Middleware) TraceMiddleWare(next http.HandlerFunc) http.HandlerFunc {
	return traceutil.TraceMiddleware(next, m.logger)
}

func (m Middleware) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return traceutil.RecoverMiddleware(next, m.logger, m.debug)
}

// RequestSourceMiddleware copies the request source header into the context so store logs carry it
func (m Middleware) RequestSourceMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := r.Header.Get(RequestSourceHeader)
		if source == "" {
			source = "api"
		}
		next(w, r.WithContext(internal.WithRequestSource(r.Context(), source)))
	}
}
