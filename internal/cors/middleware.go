package cors

import (
	"net/http"
	"strings"

	corsutil "github.com/NYCU-SDC/summer/pkg/cors"
	"go.uber.org/zap"
)

// ExposedHeaders are readable by the editor frontend on cross-origin responses.
// Content-Disposition carries the export file name.
var ExposedHeaders = []string{"Content-Disposition"}

type Middleware struct {
	logger       *zap.Logger
	allowOrigins []string
	expose       string
}

func NewMiddleware(logger *zap.Logger, allowOrigins []string) Middleware {
	logger.Info("CORS middleware initialized", zap.Strings("allow_origins", allowOrigins), zap.Strings("expose_headers", ExposedHeaders))
	return Middleware{
		logger:       logger,
		allowOrigins: allowOrigins,
		expose:       strings.Join(ExposedHeaders, ", "),
	}
}

func (m Middleware) HandlerFunc(next http.HandlerFunc) http.HandlerFunc {
	handler := corsutil.CORSMiddleware(next, m.logger, m.allowOrigins)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") != "" {
			w.Header().Set("Access-Control-Expose-Headers", m.expose)
		}
		handler(w, r)
	}
}
