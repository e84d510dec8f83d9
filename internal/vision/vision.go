// Package vision obtains a textual description of a candlestick chart
// from a hosted vision-language model.
package vision

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/candlelens/candlelens/internal/prediction"
	"github.com/candlelens/candlelens/pkg/models"
)

// DefaultVersion is the DeepSeek-VL2 model version on Replicate.
const DefaultVersion = "e5caf557dd9e5dcee46442e1315291ef1867f027991ede8ff95e304d4f734200"

const defaultPollAttempts = 100

// Prompt asks the model for a systematic candle-by-candle description.
const Prompt = `Describe this candlestick chart <image> in detail. Focus on:
- Number of candles visible
- Body colors (red/green) of each candle in order
- Relative body sizes (large, medium, small, doji)
- Wick/shadow lengths (long upper, long lower, short, none)
- Gaps between candles (gap up, gap down, overlapping)
- Overall trend direction before/during the pattern
- Any notable features (engulfing, inside bars, identical highs/lows)

Be precise and systematic. Describe each candle from left to right.`

// Input is the model input for a description request.
type Input struct {
	Image             string  `json:"image"`
	Prompt            string  `json:"prompt"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	MaxLengthTokens   int     `json:"max_length_tokens"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
}

// Uploader stages image bytes where the model can fetch them.
type Uploader interface {
	UploadFile(ctx context.Context, data []byte, contentType, filename string) (string, error)
}

// Runner submits a prediction and drives it to completion.
type Runner interface {
	Run(ctx context.Context, req prediction.SubmitRequest, opts ...prediction.PollOption) (*prediction.Handle, error)
}

// Option configures a Describer.
type Option func(*Describer)

// WithVersion overrides the model version.
func WithVersion(v string) Option {
	return func(d *Describer) {
		d.version = v
	}
}

// WithPollAttempts overrides how many poll requests a description may take.
func WithPollAttempts(n int) Option {
	return func(d *Describer) {
		d.pollAttempts = n
	}
}

// Describer turns chart images into descriptions.
type Describer struct {
	files        Uploader
	runner       Runner
	version      string
	pollAttempts int
}

// NewDescriber creates a Describer.
func NewDescriber(files Uploader, runner Runner, opts ...Option) *Describer {
	d := &Describer{
		files:        files,
		runner:       runner,
		version:      DefaultVersion,
		pollAttempts: defaultPollAttempts,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Upload stages the image and returns its URL.
func (d *Describer) Upload(ctx context.Context, image []byte, contentType string) (string, error) {
	url, err := d.files.UploadFile(ctx, image, contentType, Filename(contentType))
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	log.Info().Str("url", url).Int("bytes", len(image)).Msg("image uploaded")
	return url, nil
}

// Describe uploads the chart and asks the model to describe it.
func (d *Describer) Describe(ctx context.Context, image []byte, contentType string) (models.VisionResult, error) {
	url, err := d.Upload(ctx, image, contentType)
	if err != nil {
		return models.VisionResult{}, err
	}

	req := prediction.SubmitRequest{
		Version: d.version,
		Input: Input{
			Image:             url,
			Prompt:            Prompt,
			Temperature:       0.1,
			TopP:              0.9,
			MaxLengthTokens:   2048,
			RepetitionPenalty: 1.1,
		},
		Wait: true,
	}

	start := time.Now()
	h, err := d.runner.Run(ctx, req, prediction.WithMaxAttempts(d.pollAttempts))
	if err != nil {
		return models.VisionResult{}, err
	}

	text, err := h.Output.Text()
	if err != nil {
		return models.VisionResult{}, err
	}

	result := models.VisionResult{
		Description:    text,
		PredictSeconds: h.PredictSeconds(),
	}
	log.Info().
		Str("prediction_id", h.ID).
		Float64("predict_s", result.PredictSeconds).
		Dur("wall", time.Since(start)).
		Int("chars", len(text)).
		Msg("chart described")
	return result, nil
}

// Filename picks an upload filename whose extension matches contentType.
func Filename(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "chart.png"
	}
	switch mediaType {
	case "image/jpeg", "image/jpg":
		return "chart.jpg"
	case "image/png":
		return "chart.png"
	}
	if sub, ok := strings.CutPrefix(mediaType, "image/"); ok && sub != "" && !strings.ContainsAny(sub, "+.") {
		return "chart." + sub
	}
	return "chart.png"
}
