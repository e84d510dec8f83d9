package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/candlelens/candlelens/internal/api/middleware"
)

func TestTelemetry_NamesSpanAfterRoute(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTracerProvider(tp)

	r := chi.NewRouter()
	r.Use(middleware.Telemetry)
	r.Get("/static/{file}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/analyze", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-Id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/analyze", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "GET /static/{file}", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("http.route", "/static/{file}"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("url.path", "/static/app.css"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, "POST /analyze", spans[1].Name())
	assert.Contains(t, spans[1].Attributes(), attribute.Int("http.response.status_code", http.StatusInternalServerError))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
