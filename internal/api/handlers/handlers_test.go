package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlelens/candlelens/internal/api/handlers"
	"github.com/candlelens/candlelens/internal/failure"
	"github.com/candlelens/candlelens/pkg/models"
)

type fakeAnalyzer struct {
	patterns []models.Pattern
	resp     *models.AnalyzeResponse
	err      error
	got      []models.ChartAnalysisRequest
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req models.ChartAnalysisRequest) (*models.AnalyzeResponse, error) {
	f.got = append(f.got, req)
	return f.resp, f.err
}

func (f *fakeAnalyzer) Patterns() []models.Pattern { return f.patterns }

type fixedStatus models.WarmupStatus

func (s fixedStatus) Status() models.WarmupStatus { return models.WarmupStatus(s) }

type fixedTotals models.CostTotals

func (c fixedTotals) Totals() models.CostTotals { return models.CostTotals(c) }

func newHandlers(a *fakeAnalyzer) *handlers.Handlers {
	return handlers.New(a,
		fixedStatus{State: models.WarmupReady, Message: "model ready (12s)", ElapsedSeconds: 12},
		fixedTotals{Analyses: 2, TotalCostUSD: 0.5},
	)
}

type part struct {
	field       string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="chart"`, p.field))
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body["error"]
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	newHandlers(&fakeAnalyzer{}).Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestWarmupStatus(t *testing.T) {
	w := httptest.NewRecorder()
	newHandlers(&fakeAnalyzer{}).WarmupStatus(w, httptest.NewRequest(http.MethodGet, "/warmup", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"state":"ready","message":"model ready (12s)","elapsed_seconds":12}`, w.Body.String())
}

func TestListPatterns(t *testing.T) {
	t.Run("loaded", func(t *testing.T) {
		a := &fakeAnalyzer{patterns: []models.Pattern{
			{Name: "Doji", Category: "Single", Direction: "Neutral", Description: "Indecision"},
		}}
		w := httptest.NewRecorder()
		newHandlers(a).ListPatterns(w, httptest.NewRequest(http.MethodGet, "/patterns", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var got []models.Pattern
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.Equal(t, a.patterns, got)
	})

	t.Run("nil renders as empty array", func(t *testing.T) {
		w := httptest.NewRecorder()
		newHandlers(&fakeAnalyzer{}).ListPatterns(w, httptest.NewRequest(http.MethodGet, "/patterns", nil))
		assert.JSONEq(t, `[]`, w.Body.String())
	})
}

func TestGetCostSummary(t *testing.T) {
	w := httptest.NewRecorder()
	newHandlers(&fakeAnalyzer{}).GetCostSummary(w, httptest.NewRequest(http.MethodGet, "/api/costs", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var got models.CostTotals
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, int64(2), got.Analyses)
	assert.InDelta(t, 0.5, got.TotalCostUSD, 1e-12)
}

func TestAnalyze_Success(t *testing.T) {
	a := &fakeAnalyzer{resp: &models.AnalyzeResponse{AnalysisID: "abc", Pattern: "Hammer"}}
	w := httptest.NewRecorder()
	newHandlers(a).Analyze(w, multipartRequest(t, part{field: "image", contentType: "image/jpeg", data: []byte{0xff, 0xd8}}))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, a.got, 1)
	assert.Equal(t, []byte{0xff, 0xd8}, a.got[0].Image)
	assert.Equal(t, "image/jpeg", a.got[0].ContentType)

	var got models.AnalyzeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "abc", got.AnalysisID)
	assert.Equal(t, "Hammer", got.Pattern)
}

func TestAnalyze_DefaultContentType(t *testing.T) {
	a := &fakeAnalyzer{resp: &models.AnalyzeResponse{}}
	w := httptest.NewRecorder()
	newHandlers(a).Analyze(w, multipartRequest(t, part{field: "image", data: []byte("png")}))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, a.got, 1)
	assert.Equal(t, "image/png", a.got[0].ContentType)
}

func TestAnalyze_BadUploads(t *testing.T) {
	tests := []struct {
		name  string
		parts []part
		want  string
	}{
		{"no image field", []part{{field: "file", data: []byte("x")}}, "No image field in request"},
		{"no parts", nil, "No image field in request"},
		{"empty image", []part{{field: "image", data: nil}}, "Empty image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAnalyzer{}
			w := httptest.NewRecorder()
			newHandlers(a).Analyze(w, multipartRequest(t, tt.parts...))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, decodeError(t, w))
			assert.Empty(t, a.got)
		})
	}
}

func TestAnalyze_NotMultipart(t *testing.T) {
	a := &fakeAnalyzer{}
	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	newHandlers(a).Analyze(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w), "Multipart error")
	assert.Empty(t, a.got)
}

func TestAnalyze_NotReadyBeforeReadingUpload(t *testing.T) {
	warming := fixedStatus{State: models.WarmupWarming, Message: "warming up model... 30s", ElapsedSeconds: 30}

	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
	}{
		{"not multipart", func(t *testing.T) *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader([]byte(`{}`)))
			req.Header.Set("Content-Type", "application/json")
			return req
		}},
		{"empty image", func(t *testing.T) *http.Request {
			return multipartRequest(t, part{field: "image", data: nil})
		}},
		{"valid image", func(t *testing.T) *http.Request {
			return multipartRequest(t, part{field: "image", contentType: "image/png", data: []byte("png")})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAnalyzer{}
			h := handlers.New(a, warming, fixedTotals{})
			w := httptest.NewRecorder()
			h.Analyze(w, tt.req(t))

			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			assert.Equal(t, "Model not ready: warming up model... 30s", decodeError(t, w))
			assert.Empty(t, a.got)
		})
	}
}

func TestAnalyze_TooLarge(t *testing.T) {
	a := &fakeAnalyzer{}
	h := newHandlers(a)
	h.MaxUploadBytes = 64
	w := httptest.NewRecorder()
	h.Analyze(w, multipartRequest(t, part{field: "image", data: bytes.Repeat([]byte("a"), 1024)}))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, a.got)
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "not ready",
			err:        failure.New(failure.NotReady, "model not ready: warming up model... 30s"),
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "Model not ready: warming up model... 30s",
		},
		{
			name:       "vision failure",
			err:        fmt.Errorf("vision analysis failed: %w", failure.New(failure.Upstream, "prediction failed")),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Vision analysis failed: prediction failed",
		},
		{
			name:       "reasoning failure",
			err:        fmt.Errorf("pattern analysis failed: %w", failure.New(failure.Parse, "pattern JSON from reasoner is invalid")),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Pattern analysis failed: pattern JSON from reasoner is invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAnalyzer{err: tt.err}
			w := httptest.NewRecorder()
			newHandlers(a).Analyze(w, multipartRequest(t, part{field: "image", data: []byte("png")}))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantMsg, decodeError(t, w))
		})
	}
}
