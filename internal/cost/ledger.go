package cost

import (
	"sync"

	"github.com/candlelens/candlelens/pkg/models"
)

// Ledger keeps running totals of what successful analyses have cost since
// process start. It is in-memory only.
type Ledger struct {
	mu     sync.RWMutex
	totals models.CostTotals
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record adds one analysis breakdown to the totals.
func (l *Ledger) Record(b models.CostBreakdown) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totals.Analyses++
	l.totals.VisionSeconds += b.VisionSeconds
	l.totals.VisionCostUSD += b.VisionCostUSD
	l.totals.ReasonerPromptTokens += b.ReasonerPromptTokens
	l.totals.ReasonerCompletionTokens += b.ReasonerCompletionTokens
	l.totals.ReasonerReasoningTokens += b.ReasonerReasoningTokens
	l.totals.ReasonerCacheHitTokens += b.ReasonerCacheHitTokens
	l.totals.ReasonerCostUSD += b.ReasonerCostUSD
	l.totals.TotalCostUSD += b.TotalCostUSD
}

// Totals returns a copy of the running totals.
func (l *Ledger) Totals() models.CostTotals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totals
}
