package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/metrics"
)

const (
	TenantIDHeader  = "X-Tenant-ID"
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"

	maxTenantIDLen = 64
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	traceKey
	requestKey
)

var tracer = otel.Tracer("github.com/lifelink-community/lifelink/internal/api")

// RequireTenant stores the X-Tenant-ID header in the request context.
// The global tenant "*" holds shared settings and cannot be acted as.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(TenantIDHeader))
		switch {
		case tenantID == "":
			writeError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
			return
		case tenantID == GlobalTenantID:
			writeError(w, http.StatusBadRequest, "tenant ID \"*\" is reserved")
			return
		case len(tenantID) > maxTenantIDLen:
			writeError(w, http.StatusBadRequest, "tenant ID is too long")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey, tenantID)))
	})
}

// Observe opens a server span for the request (continuing an incoming W3C
// trace), echoes the request and trace IDs, and on the way out writes the
// access log line and the HTTP metrics.
func Observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		traceID := requestID
		if sc := span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		ctx = context.WithValue(ctx, requestKey, requestID)
		ctx = context.WithValue(ctx, traceKey, traceID)

		w.Header().Set(RequestIDHeader, requestID)
		w.Header().Set(TraceIDHeader, traceID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(ctx)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		elapsed := time.Since(start)

		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		// The tenant lives in an inner context, so read it from the header.
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.String("tenant_id", r.Header.Get(TenantIDHeader)),
			zap.String("request_id", requestID),
			zap.String("trace_id", traceID),
		)
	})
}

// routePattern returns the matched chi pattern, so /donors/{id} is one
// series rather than one per donor.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Recover turns a handler panic into a 500.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				zap.L().Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Stack("stack"),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORS answers preflight requests and exposes the tracing headers to
// browser clients such as the donor dashboard.
func CORS(next http.Handler) http.Handler {
	allowHeaders := strings.Join([]string{"Content-Type", TenantIDHeader, RequestIDHeader, TraceIDHeader}, ", ")
	exposeHeaders := strings.Join([]string{RequestIDHeader, TraceIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"}, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Expose-Headers", exposeHeaders)
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit caps requests per tenant in a fixed window kept in the cache's
// counters. It runs after RequireTenant. A counter failure lets the request
// through.
func RateLimit(cache domain.Cache, cfg domain.RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cache == nil || !cfg.Enabled || cfg.Requests <= 0 || cfg.Window <= 0 {
			return next
		}
		limit := strconv.FormatInt(cfg.Requests, 10)
		retryAfter := strconv.Itoa(int(cfg.Window.Seconds()))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := GetTenantID(r.Context())

			count, err := cache.IncrementCounter(r.Context(), tenantID, "ratelimit", cfg.Window)
			if err != nil {
				zap.L().Warn("rate limit counter failed", zap.String("tenant_id", tenantID), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(cfg.Requests-count, 0), 10))
			if count > cfg.Requests {
				metrics.RateLimited.WithLabelValues(tenantID).Inc()
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func contextString(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// GetTenantID returns the tenant set by RequireTenant.
func GetTenantID(ctx context.Context) string { return contextString(ctx, tenantKey) }

// GetTraceID returns the trace ID set by Observe. Evaluations record it.
func GetTraceID(ctx context.Context) string { return contextString(ctx, traceKey) }

// GetRequestID returns the request ID set by Observe.
func GetRequestID(ctx context.Context) string { return contextString(ctx, requestKey) }
