package prediction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlelens/candlelens/internal/failure"
)

// scriptedBackend replays a fixed sequence of poll responses. Once the
// script runs out the last entry repeats.
type scriptedBackend struct {
	mu       sync.Mutex
	submit   *Handle
	submitEr error
	polls    []pollStep
	gets     int
	submits  int
}

type pollStep struct {
	h   *Handle
	err error
}

func (b *scriptedBackend) Submit(_ context.Context, _ SubmitRequest) (*Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits++
	return b.submit, b.submitEr
}

func (b *scriptedBackend) Get(_ context.Context, _ string) (*Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.gets
	if i >= len(b.polls) {
		i = len(b.polls) - 1
	}
	b.gets++
	return b.polls[i].h, b.polls[i].err
}

func (b *scriptedBackend) getCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gets
}

func running(id string) *Handle {
	return &Handle{ID: id, Status: StatusProcessing}
}

func succeeded(id, text string) *Handle {
	pt := 3.5
	return &Handle{ID: id, Status: StatusSucceeded, Output: Output{Kind: OutputText, Value: text}, PredictTime: &pt}
}

func fastPoller(b Backend, maxAttempts int) *Poller {
	return NewPoller(b, WithInterval(time.Millisecond), WithMaxAttempts(maxAttempts))
}

func TestRun_SucceededOnSubmitNeverPolls(t *testing.T) {
	b := &scriptedBackend{submit: succeeded("p", "done")}

	h, err := fastPoller(b, 5).Run(context.Background(), SubmitRequest{Version: "v", Wait: true})
	require.NoError(t, err)
	assert.Equal(t, "p", h.ID)
	assert.Equal(t, 0, b.getCount())
}

func TestRun_PollsUntilSucceeded(t *testing.T) {
	const nonTerminal = 4
	var polls []pollStep
	for i := 0; i < nonTerminal; i++ {
		polls = append(polls, pollStep{h: running("p")})
	}
	polls = append(polls, pollStep{h: succeeded("p", "desc")})
	b := &scriptedBackend{submit: &Handle{ID: "p", Status: StatusStarting}, polls: polls}

	h, err := fastPoller(b, 100).Run(context.Background(), SubmitRequest{Version: "v"})
	require.NoError(t, err)

	text, err := h.Output.Text()
	require.NoError(t, err)
	assert.Equal(t, "desc", text)
	assert.Equal(t, nonTerminal+1, b.getCount())
}

func TestPollUntilTerminal_TimesOutAfterExactlyMaxAttempts(t *testing.T) {
	b := &scriptedBackend{polls: []pollStep{{h: running("p")}}}

	_, err := fastPoller(b, 7).PollUntilTerminal(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, failure.Timeout, failure.KindOf(err))
	assert.Contains(t, err.Error(), "timed out after 7 attempts")
	assert.Equal(t, 7, b.getCount())
}

func TestPollUntilTerminal_ErrorFieldIsFatalEvenWhenSucceeded(t *testing.T) {
	h := succeeded("p", "desc")
	h.Error = "NSFW content detected"
	b := &scriptedBackend{polls: []pollStep{{h: running("p")}, {h: h}}}

	_, err := fastPoller(b, 10).PollUntilTerminal(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, failure.Upstream, failure.KindOf(err))
	assert.Contains(t, err.Error(), "NSFW content detected")
	assert.Equal(t, 2, b.getCount())
}

func TestPollUntilTerminal_FailedAndCanceled(t *testing.T) {
	for _, status := range []Status{StatusFailed, StatusCanceled} {
		t.Run(string(status), func(t *testing.T) {
			b := &scriptedBackend{polls: []pollStep{{h: &Handle{ID: "p", Status: status}}}}

			_, err := fastPoller(b, 10).PollUntilTerminal(context.Background(), "p")
			require.Error(t, err)
			assert.Equal(t, failure.Upstream, failure.KindOf(err))
			assert.Contains(t, err.Error(), "prediction p "+string(status))
			assert.Equal(t, 1, b.getCount())
		})
	}
}

func TestPollUntilTerminal_GetErrorsAreSwallowed(t *testing.T) {
	netErr := failure.Wrap(failure.Transport, errors.New("connection reset"), "GET /v1/predictions/p")
	parseErr := failure.New(failure.Parse, "decode prediction: invalid JSON")
	b := &scriptedBackend{polls: []pollStep{
		{err: netErr},
		{err: parseErr},
		{err: netErr},
		{h: succeeded("p", "ok")},
	}}

	h, err := fastPoller(b, 10).PollUntilTerminal(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, h.Status)
	assert.Equal(t, 4, b.getCount())
}

func TestPollUntilTerminal_PersistentGetErrorsTimeOut(t *testing.T) {
	b := &scriptedBackend{polls: []pollStep{{err: errors.New("boom")}}}

	_, err := fastPoller(b, 3).PollUntilTerminal(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, failure.Timeout, failure.KindOf(err))
	assert.Equal(t, 3, b.getCount())
}

func TestPollUntilTerminal_ObserverTicks(t *testing.T) {
	b := &scriptedBackend{polls: []pollStep{
		{h: running("p")},
		{h: running("p")},
		{h: succeeded("p", "ok")},
	}}

	var ticks []Tick
	_, err := fastPoller(b, 50).PollUntilTerminal(context.Background(), "p", WithObserver(func(tk Tick) {
		ticks = append(ticks, tk)
	}))
	require.NoError(t, err)

	require.Len(t, ticks, 3)
	for i, tk := range ticks {
		assert.Equal(t, i+1, tk.Attempt)
		assert.Equal(t, 50, tk.MaxAttempts)
		if i > 0 {
			assert.GreaterOrEqual(t, tk.Elapsed, ticks[i-1].Elapsed)
		}
	}
	assert.Equal(t, Status(""), ticks[0].Status)
	assert.Equal(t, StatusProcessing, ticks[2].Status)
}

func TestPollUntilTerminal_ContextCanceled(t *testing.T) {
	b := &scriptedBackend{polls: []pollStep{{h: running("p")}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPoller(b, WithInterval(time.Hour)).PollUntilTerminal(ctx, "p")
	require.Error(t, err)
	assert.Equal(t, failure.Transport, failure.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.getCount())
}

func TestRun_SubmitOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		submit   *Handle
		submitEr error
		wantKind failure.Kind
		wantErr  string
	}{
		{
			name:     "error field",
			submit:   &Handle{ID: "p", Status: StatusStarting, Error: "invalid image"},
			wantKind: failure.Upstream,
			wantErr:  "invalid image",
		},
		{
			name:     "failed on submit",
			submit:   &Handle{ID: "p", Status: StatusFailed},
			wantKind: failure.Upstream,
			wantErr:  "prediction p failed",
		},
		{
			name:     "unknown status",
			submit:   &Handle{ID: "p", Status: "queued"},
			wantKind: failure.Upstream,
			wantErr:  "unexpected prediction status: queued",
		},
		{
			name:     "running without id",
			submit:   &Handle{Status: StatusProcessing},
			wantKind: failure.Parse,
			wantErr:  "missing id",
		},
		{
			name:     "submit transport failure",
			submitEr: failure.Wrap(failure.Transport, errors.New("dial tcp: refused"), "POST /v1/predictions"),
			wantKind: failure.Transport,
			wantErr:  "refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &scriptedBackend{submit: tt.submit, submitEr: tt.submitEr, polls: []pollStep{{h: succeeded("p", "x")}}}

			_, err := fastPoller(b, 5).Run(context.Background(), SubmitRequest{Version: "v"})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, failure.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, 0, b.getCount())
		})
	}
}

func TestPoller_PerCallOptionsOverrideDefaults(t *testing.T) {
	b := &scriptedBackend{polls: []pollStep{{h: running("p")}}}

	_, err := fastPoller(b, 100).PollUntilTerminal(context.Background(), "p", WithMaxAttempts(2))
	require.Error(t, err)
	assert.Equal(t, 2, b.getCount())
}

func TestPollUntilTerminal_ErrorFieldWithoutStatusIsFatal(t *testing.T) {
	b := &scriptedBackend{polls: []pollStep{{h: running("p1")}, {h: &Handle{ID: "p1", Error: "model crashed"}}}}

	_, err := fastPoller(b, 10).PollUntilTerminal(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, failure.Upstream, failure.KindOf(err))
	assert.Equal(t, "prediction p1 failed: model crashed", err.Error())
	assert.Equal(t, 2, b.getCount())
}
