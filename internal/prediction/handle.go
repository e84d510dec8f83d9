// Package prediction talks to a Replicate-compatible predictions API: it
// submits jobs, stages input files and polls running jobs to a terminal state.
package prediction

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/candlelens/candlelens/internal/failure"
)

// Status is the lifecycle state reported for a prediction.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether the prediction can no longer change state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Handle is one observation of a remote prediction.
type Handle struct {
	ID     string
	Status Status
	Output Output
	// Error is the server-reported error; non-empty means the prediction failed.
	Error string
	// PredictTime is the billed predict time in seconds, when reported.
	PredictTime *float64
}

// PredictSeconds returns the reported predict time, or 0 when absent.
func (h *Handle) PredictSeconds() float64 {
	if h.PredictTime == nil {
		return 0
	}
	return *h.PredictTime
}

// OutputKind discriminates the shapes a prediction output can take.
type OutputKind int

const (
	OutputNone OutputKind = iota
	OutputText
	OutputFragments
	OutputOpaque
)

// Output is the prediction output resolved into one of four shapes.
// Text holds a bare string, Fragments the string items of an array
// (streamed token chunks), Opaque the raw JSON of anything else.
type Output struct {
	Kind      OutputKind
	Value     string
	Fragments []string
}

// Text normalises the output to a single string.
func (o Output) Text() (string, error) {
	switch o.Kind {
	case OutputText:
		if o.Value == "" {
			return "", failure.New(failure.Parse, "prediction returned empty output")
		}
		return o.Value, nil
	case OutputOpaque:
		return o.Value, nil
	case OutputFragments:
		text := strings.Join(o.Fragments, "")
		if text == "" {
			return "", failure.New(failure.Parse, "prediction returned empty output array")
		}
		return text, nil
	default:
		return "", failure.New(failure.Parse, "prediction returned no output")
	}
}

func outputFrom(r gjson.Result) Output {
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return Output{Kind: OutputNone}
	case r.Type == gjson.String:
		return Output{Kind: OutputText, Value: r.Str}
	case r.IsArray():
		frags := []string{}
		r.ForEach(func(_, item gjson.Result) bool {
			if item.Type == gjson.String {
				frags = append(frags, item.Str)
			}
			return true
		})
		return Output{Kind: OutputFragments, Fragments: frags}
	default:
		return Output{Kind: OutputOpaque, Value: r.Raw}
	}
}

// decodeHandle parses a prediction body. The raw body is kept on parse failures.
func decodeHandle(body []byte) (*Handle, error) {
	if !gjson.ValidBytes(body) {
		return nil, failure.New(failure.Parse, "decode prediction: invalid JSON").WithRaw(string(body))
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, failure.New(failure.Parse, "decode prediction: expected object").WithRaw(string(body))
	}

	h := &Handle{
		ID:     root.Get("id").String(),
		Output: outputFrom(root.Get("output")),
	}

	// The error field wins over status, so it is read first: a body that
	// carries an error but no usable status still fails the prediction.
	switch e := root.Get("error"); e.Type {
	case gjson.Null:
	case gjson.String:
		h.Error = e.Str
	default:
		h.Error = e.Raw
	}

	status := root.Get("status")
	switch {
	case status.Type == gjson.String:
		h.Status = Status(status.Str)
	case h.Error == "":
		return nil, failure.New(failure.Parse, "decode prediction: missing status").WithRaw(string(body))
	}

	if pt := root.Get("metrics.predict_time"); pt.Type == gjson.Number {
		v := pt.Float()
		if v < 0 {
			v = 0
		}
		h.PredictTime = &v
	}

	return h, nil
}
