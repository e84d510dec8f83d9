// Package warmup wakes the vision model at startup and tracks whether the
// service is ready to take analysis requests.
package warmup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/candlelens/candlelens/internal/prediction"
	"github.com/candlelens/candlelens/internal/vision"
	"github.com/candlelens/candlelens/pkg/models"
)

// DefaultImageURL is a small public image used for the synthetic prediction.
const DefaultImageURL = "https://replicate.delivery/pbxt/MTtsBStHRqLDgNZMkt0J7PptoJ3lseSUNcGaDkG230ttNJlT/workflow.png"

const defaultMaxAttempts = 120

// Runner submits a prediction and drives it to completion.
type Runner interface {
	Run(ctx context.Context, req prediction.SubmitRequest, opts ...prediction.PollOption) (*prediction.Handle, error)
}

type warmupInput struct {
	Image           string `json:"image"`
	Prompt          string `json:"prompt"`
	MaxLengthTokens int    `json:"max_length_tokens"`
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithVersion overrides the model version to warm.
func WithVersion(v string) Option {
	return func(m *Monitor) {
		m.version = v
	}
}

// WithImageURL overrides the image used by the synthetic prediction.
func WithImageURL(url string) Option {
	return func(m *Monitor) {
		m.imageURL = url
	}
}

// WithMaxAttempts overrides the poll budget.
func WithMaxAttempts(n int) Option {
	return func(m *Monitor) {
		m.maxAttempts = n
	}
}

// Monitor runs the warmup once per process. There is no restart: a failed
// warmup leaves the service rejecting analyses until the process restarts.
type Monitor struct {
	cell        *Cell
	runner      Runner
	version     string
	imageURL    string
	maxAttempts int
	now         func() time.Time

	once sync.Once
	done chan struct{}
}

// NewMonitor creates a warmup monitor writing to cell.
func NewMonitor(cell *Cell, runner Runner, opts ...Option) *Monitor {
	m := &Monitor{
		cell:        cell,
		runner:      runner,
		version:     vision.DefaultVersion,
		imageURL:    DefaultImageURL,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start launches the warmup in the background. Later calls do not start a
// second warmup.
func (m *Monitor) Start(ctx context.Context) {
	go m.Run(ctx)
}

// Run performs the warmup, or waits for the one already in progress, and
// returns the terminal status.
func (m *Monitor) Run(ctx context.Context) models.WarmupStatus {
	m.once.Do(func() {
		defer close(m.done)
		m.run(ctx)
	})
	<-m.done
	return m.cell.Load()
}

// Done is closed once the warmup reaches a terminal state.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Status returns the current warmup status.
func (m *Monitor) Status() models.WarmupStatus {
	return m.cell.Load()
}

func (m *Monitor) run(ctx context.Context) {
	start := m.now()
	elapsed := func() uint64 {
		return uint64(m.now().Sub(start) / time.Second)
	}

	m.cell.Store(models.WarmupStatus{
		State:   models.WarmupWarming,
		Message: "sending warmup request...",
	})
	log.Info().Str("version", m.version).Msg("warmup: sending synthetic prediction to wake vision model")

	req := prediction.SubmitRequest{
		Version: m.version,
		Input: warmupInput{
			Image:           m.imageURL,
			Prompt:          "Say OK <image>",
			MaxLengthTokens: 10,
		},
	}

	_, err := m.runner.Run(ctx, req,
		prediction.WithMaxAttempts(m.maxAttempts),
		prediction.WithObserver(func(prediction.Tick) {
			secs := elapsed()
			m.cell.Store(models.WarmupStatus{
				State:          models.WarmupWarming,
				Message:        fmt.Sprintf("warming up model... %ds", secs),
				ElapsedSeconds: secs,
			})
		}),
	)

	secs := elapsed()
	if err != nil {
		m.cell.Store(models.WarmupStatus{
			State:          models.WarmupFailed,
			Message:        fmt.Sprintf("warmup failed: %s", err),
			ElapsedSeconds: secs,
		})
		log.Error().Err(err).Uint64("elapsed_s", secs).Msg("warmup failed")
		return
	}

	m.cell.Store(models.WarmupStatus{
		State:          models.WarmupReady,
		Message:        fmt.Sprintf("model ready (%ds)", secs),
		ElapsedSeconds: secs,
	})
	log.Info().Uint64("elapsed_s", secs).Msg("warmup: model ready")
}
