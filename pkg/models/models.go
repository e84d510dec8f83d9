// Package models defines the value types shared across candlelens.
package models

// ── Warmup ───────────────────────────────────────────────────

type WarmupState string

const (
	WarmupStarting WarmupState = "starting"
	WarmupWarming  WarmupState = "warming"
	WarmupReady    WarmupState = "ready"
	WarmupFailed   WarmupState = "failed"
)

// Terminal reports whether no further transition can happen from s.
func (s WarmupState) Terminal() bool {
	return s == WarmupReady || s == WarmupFailed
}

// WarmupStatus is the process-wide readiness of the vision backend.
// It is always passed around by value; the warmup monitor is its only writer.
type WarmupStatus struct {
	State          WarmupState `json:"state"`
	Message        string      `json:"message"`
	ElapsedSeconds uint64      `json:"elapsed_seconds"`
}

// ── Taxonomy ─────────────────────────────────────────────────

// Pattern is one entry of the candlestick pattern taxonomy.
type Pattern struct {
	Name        string `json:"name" yaml:"name"`
	Category    string `json:"category" yaml:"category"`
	Direction   string `json:"direction" yaml:"direction"`
	Description string `json:"description" yaml:"description"`
}

// ── Analysis ─────────────────────────────────────────────────

// ChartAnalysisRequest carries one uploaded chart image.
type ChartAnalysisRequest struct {
	Image       []byte
	ContentType string
}

// VisionResult is the vision model's description of a chart.
type VisionResult struct {
	Description    string  `json:"description"`
	PredictSeconds float64 `json:"predict_seconds"`
}

// AnalysisResult is the reasoning model's verdict plus its token usage.
// CacheHitTokens never exceeds PromptTokens.
type AnalysisResult struct {
	Pattern        string  `json:"pattern"`
	Category       string  `json:"category"`
	Direction      string  `json:"direction"`
	Confidence     string  `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
	ChainOfThought *string `json:"chain_of_thought,omitempty"`

	PromptTokens     uint64  `json:"prompt_tokens"`
	CompletionTokens uint64  `json:"completion_tokens"`
	ReasoningTokens  uint64  `json:"reasoning_tokens"`
	CacheHitTokens   uint64  `json:"cache_hit_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// CostBreakdown splits the cost of one analysis by stage.
// TotalCostUSD is always VisionCostUSD + ReasonerCostUSD.
type CostBreakdown struct {
	VisionSeconds            float64 `json:"vision_seconds"`
	VisionCostUSD            float64 `json:"vision_cost_usd"`
	ReasonerPromptTokens     uint64  `json:"reasoner_prompt_tokens"`
	ReasonerCompletionTokens uint64  `json:"reasoner_completion_tokens"`
	ReasonerReasoningTokens  uint64  `json:"reasoner_reasoning_tokens"`
	ReasonerCacheHitTokens   uint64  `json:"reasoner_cache_hit_tokens"`
	ReasonerCostUSD          float64 `json:"reasoner_cost_usd"`
	TotalCostUSD             float64 `json:"total_cost_usd"`
}

// AnalyzeResponse is returned to the caller of a successful analysis.
type AnalyzeResponse struct {
	AnalysisID       string        `json:"analysis_id"`
	Pattern          string        `json:"pattern"`
	Category         string        `json:"category"`
	Direction        string        `json:"direction"`
	Confidence       string        `json:"confidence"`
	Reasoning        string        `json:"reasoning"`
	ChainOfThought   *string       `json:"chain_of_thought,omitempty"`
	ChartDescription string        `json:"chart_description"`
	Cost             CostBreakdown `json:"cost"`
}

// CostTotals accumulates spend across every successful analysis since start.
type CostTotals struct {
	Analyses                 int64   `json:"analyses"`
	VisionSeconds            float64 `json:"vision_seconds"`
	VisionCostUSD            float64 `json:"vision_cost_usd"`
	ReasonerPromptTokens     uint64  `json:"reasoner_prompt_tokens"`
	ReasonerCompletionTokens uint64  `json:"reasoner_completion_tokens"`
	ReasonerReasoningTokens  uint64  `json:"reasoner_reasoning_tokens"`
	ReasonerCacheHitTokens   uint64  `json:"reasoner_cache_hit_tokens"`
	ReasonerCostUSD          float64 `json:"reasoner_cost_usd"`
	TotalCostUSD             float64 `json:"total_cost_usd"`
}
