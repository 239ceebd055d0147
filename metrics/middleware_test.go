package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMiddleware(t *testing.T) {
	collector, err := NewPrometheus(&Config{Namespace: "test"})
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	HTTPMiddleware(collector)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	body := scrape(t, collector)
	assert.Contains(t, body, "test_http_requests_total")
	assert.Contains(t, body, `method="GET"`)
	assert.Contains(t, body, `path="/jobs"`)
	assert.Contains(t, body, `status_code="200"`)
}

func TestHTTPMiddleware_WithError(t *testing.T) {
	collector, err := NewPrometheus(&Config{Namespace: "test"})
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	rec := httptest.NewRecorder()
	HTTPMiddleware(collector)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		collector.httpRequestsTotal.WithLabelValues(http.MethodGet, "/jobs/missing", "404"),
	))
}

func TestHTTPMiddleware_RoutePattern(t *testing.T) {
	collector, err := NewPrometheus(&Config{Namespace: "test"})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /jobs/{job}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.PathValue("job")))
	})
	handler := HTTPMiddleware(collector)(mux)

	for _, job := range []string{"reports", "cleanup"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+job, nil))
		assert.Equal(t, job, rec.Body.String())
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		collector.httpRequestsTotal.WithLabelValues(http.MethodGet, "/jobs/{job}", "200"),
	))
}

func TestResponseWriter_WriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, rw.statusCode)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResponseWriter_ImplicitOK(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	n, err := rw.Write([]byte("hello"))
	rw.WriteHeader(http.StatusTeapot)

	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, "hello", rec.Body.String())
}
