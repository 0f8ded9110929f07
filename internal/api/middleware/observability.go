package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
)

// ObservabilityMiddleware traces each request and records the request metric.
// Spans are named after the matched route, which the mux only resolves once
// the request reaches it.
func ObservabilityMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := observability.StartSpan(r.Context(), r.Method+" "+r.URL.Path)
			defer span.End()

			rw := newResponseWriter(w)
			req := r.WithContext(ctx)
			start := time.Now()

			next.ServeHTTP(rw, req)

			route := routeOf(req)
			span.SetName(route)
			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.Int("http.status_code", rw.statusCode),
			}
			if id := req.PathValue("id"); id != "" {
				key := "queue.facility_id"
				if strings.Contains(route, "/patients/") {
					key = "queue.patient_id"
				}
				attrs = append(attrs, attribute.String(key, id))
			}
			if entryID := req.PathValue("entryId"); entryID != "" {
				attrs = append(attrs, attribute.String("queue.entry_id", entryID))
			}
			observability.SetSpanAttributes(span, attrs...)

			observability.RecordRequestMetric(ctx, metrics, r.Method, route, rw.statusCode, time.Since(start))
		})
	}
}

// routeOf keeps metric cardinality bounded by preferring the route pattern
func routeOf(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}
