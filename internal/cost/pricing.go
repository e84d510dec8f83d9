// Package cost turns raw usage counters into USD.
//
// Vision is billed by GPU wall-clock seconds, reasoning by tokens with a
// discounted rate for prompt-cache hits. Nothing here rounds; presentation
// is the caller's concern.
package cost

import "github.com/candlelens/candlelens/pkg/models"

// Pricing holds the per-unit rates for both stages.
type Pricing struct {
	GPUPerSecond       float64 // USD per second of vision predict time
	InputPerMTok       float64 // USD per million prompt tokens (cache miss)
	CachedInputPerMTok float64 // USD per million prompt tokens (cache hit)
	OutputPerMTok      float64 // USD per million completion tokens
	ReasoningPerMTok   float64 // USD per million reasoning tokens
}

// DefaultPricing returns Replicate A100 80GB and DeepSeek Reasoner rates.
func DefaultPricing() Pricing {
	return Pricing{
		GPUPerSecond:       0.0014,
		InputPerMTok:       0.55,
		CachedInputPerMTok: 0.14,
		OutputPerMTok:      2.19,
		ReasoningPerMTok:   2.19, // reasoning tokens are priced as output
	}
}

// Usage is the token usage reported by the reasoning endpoint.
type Usage struct {
	PromptTokens     uint64
	CompletionTokens uint64
	ReasoningTokens  uint64
	CacheHitTokens   uint64
}

// CacheMissTokens returns prompt tokens not served from cache, saturating at zero.
func (u Usage) CacheMissTokens() uint64 {
	if u.CacheHitTokens >= u.PromptTokens {
		return 0
	}
	return u.PromptTokens - u.CacheHitTokens
}

// VisionCost returns the cost of predictSeconds of GPU time.
func VisionCost(predictSeconds float64, p Pricing) float64 {
	return predictSeconds * p.GPUPerSecond
}

// ReasonerCost returns the cost of one reasoning call. Zero usage costs zero.
func ReasonerCost(u Usage, p Pricing) float64 {
	missCost := float64(u.CacheMissTokens()) * p.InputPerMTok / 1_000_000
	hitCost := float64(u.CacheHitTokens) * p.CachedInputPerMTok / 1_000_000
	outputCost := float64(u.CompletionTokens) * p.OutputPerMTok / 1_000_000
	reasoningCost := float64(u.ReasoningTokens) * p.ReasoningPerMTok / 1_000_000
	return missCost + hitCost + outputCost + reasoningCost
}

// UsageOf extracts the token counters from an analysis result.
func UsageOf(a models.AnalysisResult) Usage {
	return Usage{
		PromptTokens:     a.PromptTokens,
		CompletionTokens: a.CompletionTokens,
		ReasoningTokens:  a.ReasoningTokens,
		CacheHitTokens:   a.CacheHitTokens,
	}
}

// Breakdown combines both stage costs. The reasoner cost is taken from the
// analysis result so the total always matches what the reasoning stage reported.
func Breakdown(v models.VisionResult, a models.AnalysisResult, p Pricing) models.CostBreakdown {
	visionCost := VisionCost(v.PredictSeconds, p)
	return models.CostBreakdown{
		VisionSeconds:            v.PredictSeconds,
		VisionCostUSD:            visionCost,
		ReasonerPromptTokens:     a.PromptTokens,
		ReasonerCompletionTokens: a.CompletionTokens,
		ReasonerReasoningTokens:  a.ReasoningTokens,
		ReasonerCacheHitTokens:   a.CacheHitTokens,
		ReasonerCostUSD:          a.CostUSD,
		TotalCostUSD:             visionCost + a.CostUSD,
	}
}
