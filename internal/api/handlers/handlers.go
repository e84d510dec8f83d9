// Package handlers implements the HTTP handlers for the candlelens server.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/candlelens/candlelens/internal/failure"
	"github.com/candlelens/candlelens/pkg/models"
)

// DefaultMaxUploadBytes bounds the multipart body of an analysis request.
const DefaultMaxUploadBytes = 20 << 20

const defaultContentType = "image/png"

// Analyzer runs chart analyses against a fixed taxonomy.
type Analyzer interface {
	Analyze(ctx context.Context, req models.ChartAnalysisRequest) (*models.AnalyzeResponse, error)
	Patterns() []models.Pattern
}

// StatusReader exposes the warmup status.
type StatusReader interface {
	Status() models.WarmupStatus
}

// CostReporter exposes running cost totals.
type CostReporter interface {
	Totals() models.CostTotals
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Analyzer       Analyzer
	Warmup         StatusReader
	Costs          CostReporter
	MaxUploadBytes int64
}

// New creates a Handlers instance.
func New(a Analyzer, w StatusReader, c CostReporter) *Handlers {
	return &Handlers{
		Analyzer:       a,
		Warmup:         w,
		Costs:          c,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// Health reports liveness. It does not depend on warmup.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// WarmupStatus returns the current warmup snapshot.
func (h *Handlers) WarmupStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Warmup.Status())
}

// ListPatterns returns the loaded taxonomy.
func (h *Handlers) ListPatterns(w http.ResponseWriter, r *http.Request) {
	patterns := h.Analyzer.Patterns()
	if patterns == nil {
		patterns = []models.Pattern{}
	}
	respondJSON(w, http.StatusOK, patterns)
}

// GetCostSummary returns spend accumulated since process start.
func (h *Handlers) GetCostSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Costs.Totals())
}

// Analyze accepts a multipart upload with an "image" field and runs the
// two-stage analysis on it.
// POST /analyze
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	// Readiness is checked before the body is read.
	if st := h.Warmup.Status(); st.State != models.WarmupReady {
		respondError(w, http.StatusServiceUnavailable, "Model not ready: "+st.Message)
		return
	}

	var guard *bodyGuard
	if h.MaxUploadBytes > 0 {
		guard = &bodyGuard{ReadCloser: http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)}
		r.Body = guard
	}

	image, contentType, err := readImage(r)
	if err != nil {
		if guard != nil && guard.tooLarge {
			respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Image exceeds %d bytes", h.MaxUploadBytes))
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Info().Int("bytes", len(image)).Str("content_type", contentType).Msg("received image")

	resp, err := h.Analyzer.Analyze(r.Context(), models.ChartAnalysisRequest{Image: image, ContentType: contentType})
	if err != nil {
		status := http.StatusInternalServerError
		if failure.Is(err, failure.NotReady) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, capitalize(err.Error()))
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// readImage pulls the "image" part out of a multipart request. The last
// "image" part wins.
func readImage(r *http.Request) ([]byte, string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", errors.New("Multipart error: " + err.Error())
	}

	var (
		image       []byte
		found       bool
		contentType = defaultContentType
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", errors.New("Multipart error: " + err.Error())
		}
		if part.FormName() != "image" {
			_ = part.Close()
			continue
		}
		if ct := part.Header.Get("Content-Type"); ct != "" {
			contentType = ct
		}
		image, err = io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, "", errors.New("Failed to read image: " + err.Error())
		}
		found = true
	}

	if !found {
		return nil, "", errors.New("No image field in request")
	}
	if len(image) == 0 {
		return nil, "", errors.New("Empty image")
	}
	return image, contentType, nil
}

// bodyGuard remembers whether the size limit was hit, however the multipart
// reader chooses to wrap the error.
type bodyGuard struct {
	io.ReadCloser
	tooLarge bool
}

func (g *bodyGuard) Read(p []byte) (int, error) {
	n, err := g.ReadCloser.Read(p)
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		g.tooLarge = true
	}
	return n, err
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
