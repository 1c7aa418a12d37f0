// Package middleware provides the HTTP middleware chain wrapped around
// every route: request ID propagation, structured access logging, panic
// recovery, CORS, an optional token-bucket rate limiter, and a
// per-request deadline. Error bodies written directly by this package
// (panic recovery, rate limiting) go through internal/errors so the
// transport layer has one taxonomy for every failure mode, not a
// second set of ad hoc JSON literals.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/distnode/ringkv/internal/dto"
	ringerrors "github.com/distnode/ringkv/internal/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ContextKey namespaces values this package stores on the request context.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	StartTimeKey ContextKey = "start_time"
)

// newRequestID mints a fresh request identifier. A var, not a literal
// call, so tests can pin it if a deterministic ID is ever needed.
var newRequestID = func() string { return uuid.New().String() }

// RequestID ensures every request carries an X-Request-ID: the
// caller-supplied one if present, otherwise a freshly minted one. The ID
// is echoed on the response, stamped back onto the inbound request's
// header for downstream middleware, and stored on the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = newRequestID()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging emits one structured access-log line per request, including
// the response's status and size.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseRecorder(w)

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), StartTimeKey, start)))

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.status),
				zap.Int("bytes", rw.bytesWritten),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", r.Header.Get("X-Request-ID")),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// Recovery turns a panic inside a downstream handler into a RingError-
// shaped 500 response, the same taxonomy handler.go routes its own
// error paths through, instead of crashing the node.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				logger.Error("panic recovered",
					zap.Any("panic", recovered),
					zap.String("request_id", r.Header.Get("X-Request-ID")),
					zap.String("path", r.URL.Path),
				)
				writeRingErrorBody(w, ringerrors.Internal("internal server error"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows the configured origins and short-circuits preflight
// OPTIONS requests with a 204.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	corsHeaders := map[string]string{
		"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, X-Request-ID",
		"Access-Control-Max-Age":       "86400",
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && originAllowed(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				for name, value := range corsHeaders {
					w.Header().Set(name, value)
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowedOrigins []string, origin string) bool {
	for _, o := range allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// RateLimiter caps the rate of accepted requests with a shared token bucket.
type RateLimiter struct {
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRateLimiter builds a RateLimiter allowing requestsPerSecond with burstSize burst.
func NewRateLimiter(requestsPerSecond float64, burstSize int, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize),
		logger:  logger,
	}
}

// Limit rejects with 429 once the bucket is exhausted, otherwise passes
// the request through untouched.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		rl.logger.Warn("rate limit exceeded",
			zap.String("request_id", r.Header.Get("X-Request-ID")),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)
		w.Header().Set("Retry-After", "1")
		writeRingErrorBody(w, ringerrors.RateLimited())
	})
}

// writeRingErrorBody writes err's message as a dto.DataResponse, at the
// status its ErrorCode maps to. Used by the two error paths (Recovery,
// RateLimiter) that this package owns outright, rather than forwarding
// into a handler.
func writeRingErrorBody(w http.ResponseWriter, err *ringerrors.RingError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.ToHTTPStatus())
	_ = json.NewEncoder(w).Encode(dto.DataResponse{Found: false, Message: err.Message})
}

// Timeout bounds how long a handler may run before its context is
// cancelled, so a slow replication fan-out or rebalance RPC cannot pin
// a request goroutine open indefinitely.
func Timeout(budget time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bounded, cancel := context.WithTimeout(r.Context(), budget)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(bounded))
		})
	}
}

// responseRecorder wraps http.ResponseWriter to capture the status code
// and byte count actually written, for Logging's access-log line.
type responseRecorder struct {
	http.ResponseWriter
	status        int
	bytesWritten  int
	headerWritten bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseRecorder) WriteHeader(code int) {
	if rw.headerWritten {
		return
	}
	rw.headerWritten = true
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	if !rw.headerWritten {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// Chain composes middlewares outer-to-inner: Chain(a, b)(h) runs a, then
// b, then h.
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
