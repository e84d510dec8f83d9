package prediction

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/candlelens/candlelens/internal/failure"
)

const (
	defaultPollInterval    = 3 * time.Second
	defaultPollMaxAttempts = 100
	warnEveryAttempts      = 10
)

// Backend is the subset of the predictions API the Poller needs.
type Backend interface {
	Submit(ctx context.Context, req SubmitRequest) (*Handle, error)
	Get(ctx context.Context, id string) (*Handle, error)
}

// Tick is reported to the observer before every poll request.
type Tick struct {
	Attempt     int
	MaxAttempts int
	Elapsed     time.Duration
	// Status is the last status seen, which may be stale.
	Status Status
}

// PollOption configures a polling run.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval    time.Duration
	maxAttempts int
	observer    func(Tick)
}

// WithInterval overrides the sleep before each poll request.
func WithInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.interval = d
	}
}

// WithMaxAttempts overrides the number of poll requests made before giving up.
func WithMaxAttempts(n int) PollOption {
	return func(c *pollConfig) {
		c.maxAttempts = n
	}
}

// WithObserver registers a callback invoked once per attempt.
func WithObserver(fn func(Tick)) PollOption {
	return func(c *pollConfig) {
		c.observer = fn
	}
}

// Poller drives predictions to a terminal state at a fixed interval.
// Options given to NewPoller are defaults; options given per call override them.
type Poller struct {
	backend  Backend
	defaults []PollOption
}

// NewPoller creates a Poller over backend.
func NewPoller(backend Backend, opts ...PollOption) *Poller {
	return &Poller{backend: backend, defaults: opts}
}

func (p *Poller) config(opts []PollOption) pollConfig {
	cfg := pollConfig{
		interval:    defaultPollInterval,
		maxAttempts: defaultPollMaxAttempts,
	}
	for _, opt := range p.defaults {
		opt(&cfg)
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Run submits req and, if the prediction has not finished yet, polls it.
// A prediction that succeeds on submit is returned without any poll request.
func (p *Poller) Run(ctx context.Context, req SubmitRequest, opts ...PollOption) (*Handle, error) {
	start := time.Now()

	h, err := p.backend.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if h.Error != "" {
		return nil, failure.New(failure.Upstream, "prediction error: %s", h.Error)
	}

	switch h.Status {
	case StatusSucceeded:
		return h, nil
	case StatusFailed, StatusCanceled:
		return nil, failure.New(failure.Upstream, "prediction %s %s", h.ID, h.Status)
	case StatusStarting, StatusProcessing:
		if h.ID == "" {
			return nil, failure.New(failure.Parse, "prediction response missing id")
		}
		log.Info().Str("prediction_id", h.ID).Str("status", string(h.Status)).Msg("prediction still running, polling")
		return p.poll(ctx, h.ID, h.Status, start, p.config(opts))
	default:
		return nil, failure.New(failure.Upstream, "unexpected prediction status: %s", h.Status)
	}
}

// PollUntilTerminal polls prediction id until it succeeds, fails or the
// attempt budget runs out. Failed poll requests count as attempts that made
// no progress.
func (p *Poller) PollUntilTerminal(ctx context.Context, id string, opts ...PollOption) (*Handle, error) {
	return p.poll(ctx, id, "", time.Now(), p.config(opts))
}

func (p *Poller) poll(ctx context.Context, id string, last Status, start time.Time, cfg pollConfig) (*Handle, error) {
	timer := time.NewTimer(cfg.interval)
	defer timer.Stop()

	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		if attempt > 1 {
			timer.Reset(cfg.interval)
		}
		select {
		case <-ctx.Done():
			return nil, failure.Wrap(failure.Transport, ctx.Err(), "poll prediction %s", id)
		case <-timer.C:
		}

		if cfg.observer != nil {
			cfg.observer(Tick{
				Attempt:     attempt,
				MaxAttempts: cfg.maxAttempts,
				Elapsed:     time.Since(start),
				Status:      last,
			})
		}

		h, err := p.backend.Get(ctx, id)
		if err != nil {
			log.Debug().Err(err).Str("prediction_id", id).Int("attempt", attempt).Msg("poll request failed")
		} else {
			last = h.Status
			if h.Error != "" {
				return nil, failure.New(failure.Upstream, "prediction %s failed: %s", id, h.Error)
			}
			switch h.Status {
			case StatusSucceeded:
				return h, nil
			case StatusFailed, StatusCanceled:
				return nil, failure.New(failure.Upstream, "prediction %s %s", id, h.Status)
			}
		}

		if attempt%warnEveryAttempts == 0 {
			log.Warn().
				Str("prediction_id", id).
				Int("attempt", attempt).
				Int("max_attempts", cfg.maxAttempts).
				Str("status", string(last)).
				Msg("still waiting for prediction")
		}
	}

	return nil, failure.New(failure.Timeout, "prediction %s timed out after %d attempts (%s)",
		id, cfg.maxAttempts, time.Since(start).Round(time.Second))
}
