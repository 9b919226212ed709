package health

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pingsantohq/slotwatch/internal/metrics"
)

const defaultFetchStale = 30 * time.Second

// Checker evaluates whether the directory is being polled successfully.
type Checker struct {
	metrics    *metrics.Store
	staleAfter time.Duration

	mu               sync.RWMutex
	lastFetchSuccess time.Time
	fetchErr         string
	lastFetchError   time.Time
}

// NewChecker constructs a readiness checker bound to the provided metrics store.
func NewChecker(store *metrics.Store, staleAfter time.Duration) *Checker {
	if staleAfter <= 0 {
		staleAfter = defaultFetchStale
	}
	return &Checker{
		metrics:    store,
		staleAfter: staleAfter,
	}
}

// ObserveFetch records the outcome of a directory fetch.
func (c *Checker) ObserveFetch(ts time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.fetchErr = err.Error()
		c.lastFetchError = ts
		return
	}
	c.lastFetchSuccess = ts
	c.fetchErr = ""
	c.lastFetchError = time.Time{}
}

// Ready evaluates all readiness conditions and returns the overall status and reasons for failure.
func (c *Checker) Ready(now time.Time) (bool, []string) {
	reasons := make([]string, 0, 2)

	c.mu.RLock()
	lastSuccess := c.lastFetchSuccess
	fetchErr := c.fetchErr
	lastErr := c.lastFetchError
	staleAfter := c.staleAfter
	c.mu.RUnlock()

	if lastSuccess.IsZero() {
		reasons = append(reasons, "directory not yet fetched")
	} else if now.Sub(lastSuccess) > staleAfter {
		reasons = append(reasons, fmt.Sprintf("directory fetch stale (%s)", now.Sub(lastSuccess).Round(time.Second)))
	}

	if fetchErr != "" && now.Sub(lastErr) <= staleAfter {
		reasons = append(reasons, fmt.Sprintf("directory fetch failing: %s", fetchErr))
	}

	ready := len(reasons) == 0
	if c.metrics != nil {
		c.metrics.ObserveReadiness(ready, strings.Join(reasons, "; "))
	}
	if !ready {
		return false, reasons
	}
	return true, nil
}
