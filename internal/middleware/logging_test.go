package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/zjoart/churpay/internal/metrics"
	"github.com/zjoart/churpay/pkg/logger"
)

func TestLoggingMiddlewareTagsRequests(t *testing.T) {
	var seen logger.Fields
	r := mux.NewRouter()
	r.Use(LoggingMiddleware)
	r.HandleFunc("/api/admin/churches/{id}", func(w http.ResponseWriter, r *http.Request) {
		seen = logger.FromContext(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}).Methods("GET")

	before := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("/api/admin/churches/{id}", "GET", "404"))

	req := httptest.NewRequest("GET", "/api/admin/churches/abc", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "req-42", rr.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-42", seen[logger.RequestIDKey])
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("/api/admin/churches/{id}", "GET", "404")))
}

func TestLoggingMiddlewareGeneratesRequestID(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	assert.Len(t, rr.Header().Get(RequestIDHeader), 36)
}
