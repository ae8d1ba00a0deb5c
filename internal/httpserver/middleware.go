package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"sampleapp/backend/internal/logging"

	"github.com/google/uuid"
)

type ctxKeyRequestID struct{}

type responseRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return id
}

// withLogging records one line per request. Query strings are left out since
// activation links carry the email there.
func withLogging(next http.Handler, logger logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)
		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		logger.Info(r.Context(), "http request",
			"method", r.Method,
			"path", redactPath(r.URL.Path),
			"status", status,
			"bytes", recorder.size,
			"duration", time.Since(start),
			"request_id", requestIDFromContext(r.Context()),
		)
	})
}

// redactPath hides the token segment of activation links.
func redactPath(p string) string {
	const prefix = "/account_activations/"
	if !strings.HasPrefix(p, prefix) {
		return p
	}
	rest := strings.TrimPrefix(p, prefix)
	if i := strings.Index(rest, "/"); i >= 0 {
		return prefix + "[redacted]" + rest[i:]
	}
	return prefix + "[redacted]"
}

// withCORS echoes listed origins with credentials allowed. A "*" entry opens
// the API to any origin, but never with credentials.
func withCORS(next http.Handler, allowedOrigins []string) http.Handler {
	wildcard := false
	for _, candidate := range allowedOrigins {
		if candidate == "*" {
			wildcard = true
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		w.Header().Add("Vary", "Origin")
		switch {
		case origin != "" && isOriginListed(origin, allowedOrigins):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		case wildcard:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isOriginListed(origin string, allowed []string) bool {
	for _, candidate := range allowed {
		if candidate != "*" && strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}
