package warmup

import (
	"sync"

	"github.com/candlelens/candlelens/pkg/models"
)

// Cell holds the process-wide warmup status. Readers get a snapshot; the
// writer replaces the whole value. Once a terminal state is stored, later
// writes are ignored, and elapsed seconds never go backwards.
type Cell struct {
	mu sync.RWMutex
	v  models.WarmupStatus
}

// NewCell returns a cell in the starting state.
func NewCell() *Cell {
	return &Cell{v: models.WarmupStatus{
		State:   models.WarmupStarting,
		Message: "server starting...",
	}}
}

// Load returns the current status.
func (c *Cell) Load() models.WarmupStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// Store replaces the status. It reports false if the cell was already terminal.
func (c *Cell) Store(v models.WarmupStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.v.State.Terminal() {
		return false
	}
	if v.ElapsedSeconds < c.v.ElapsedSeconds {
		v.ElapsedSeconds = c.v.ElapsedSeconds
	}
	c.v = v
	return true
}
