package mid

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Otel starts a server span for every request except those to the excluded
// paths, and stores the trace in the request context.
func Otel(operation string, excluded ...string) func(next http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(excluded))
	for _, p := range excluded {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, operation,
			otelhttp.WithFilter(func(r *http.Request) bool {
				_, ok := skip[r.URL.Path]
				return !ok
			}),
		)
	}
}
