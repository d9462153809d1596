package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/STTM-NSU/demo-trading/internal/logger"
	"github.com/google/uuid"
)

const _requestIDHeader = "X-Request-Id"

type ctxKey int

const (
	userIDKey ctxKey = iota
	requestIDKey
)

func userFromContext(ctx context.Context) string {
	u, _ := ctx.Value(userIDKey).(string)
	return u
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// identity trusts the header set by the auth gateway in front of the service.
func identity(header string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := strings.TrimSpace(r.Header.Get(header)); user != "" {
			r = r.WithContext(context.WithValue(r.Context(), userIDKey, user))
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLog(log logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(_requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(_requestIDHeader, reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, reqID)))

		log.Infof("%s %s %d %s request_id=%s", r.Method, r.URL.Path, rec.status, time.Since(start), reqID)
	})
}
