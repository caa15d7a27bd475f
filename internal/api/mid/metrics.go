package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestRecorder records per-route request counts and latencies.
type RequestRecorder interface {
	IncRequestsTotal(ctx context.Context, method, path string, status int)
	ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration)
}

// Metrics records every request under its chi route pattern, so path
// parameters such as task ids do not explode metric cardinality.
func Metrics(m RequestRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}
			ctx := context.WithoutCancel(r.Context())
			m.IncRequestsTotal(ctx, r.Method, path, ww.Status())
			m.ObserveRequestDuration(ctx, r.Method, path, time.Since(start))
		})
	}
}
