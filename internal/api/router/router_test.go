package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuongbtq/jigsaw-be/internal/api/handler"
	"github.com/cuongbtq/jigsaw-be/internal/jobs"
	"github.com/cuongbtq/jigsaw-be/internal/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	records := memory.NewRecordStore()
	objects := memory.NewObjectStore()

	return SetupRouter(&handler.Dependencies{
		Logger: logger,
		Jobs: jobs.NewService(&jobs.Config{
			Records: records,
			Objects: objects,
			Signer:  objects,
			Logger:  logger,
		}),
		ServiceName: "jigsaw-api-test",
	})
}

func TestHealth(t *testing.T) {
	r := newTestRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "jigsaw-api-test", body.Service)
}

func TestHealth_FailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", healthHandler("svc", map[string]func(ctx context.Context) error{
		"postgres": func(ctx context.Context) error { return nil },
		"rabbitmq": func(ctx context.Context) error { return errors.New("not connected") },
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "rabbitmq": "not connected"}, body.Dependencies)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoutesRegistered(t *testing.T) {
	r := newTestRouter()

	want := map[string]bool{
		"POST /api/v1/jobs":                 false,
		"GET /api/v1/jobs":                  false,
		"GET /api/v1/jobs/:job_id":          false,
		"DELETE /api/v1/jobs/:job_id":       false,
		"POST /api/v1/jobs/:job_id/upload":  false,
		"POST /api/v1/jobs/:job_id/process": false,
		"GET /api/v1/jobs/:job_id/pieces":   false,
		"GET /health":                       false,
	}
	for _, route := range r.Routes() {
		key := route.Method + " " + route.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		assert.True(t, found, route)
	}
}
