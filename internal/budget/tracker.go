// Package budget implements the Budget & Telemetry Tracker (spec §4.5):
// simple integer counters updated inline, plus the wall-clock ceiling
// check that every suspension point in the orchestrator consults.
package budget

import (
	"time"

	"github.com/aprbench/aprloop/internal/model"
)

// GlobalTimeout is the spec's 1200s wall-clock ceiling (§4.1, §5).
const GlobalTimeout = 1200 * time.Second

// Tracker owns one run's Metrics and start time. All counters are
// unshared — the loop is single-threaded cooperative within one
// instance (spec §5) — so no locking is needed.
type Tracker struct {
	Metrics   *model.Metrics
	startTime time.Time
}

// New starts a monotonic clock and returns a Tracker with zeroed metrics
// — spec §4.1 step 2.
func New() *Tracker {
	return &Tracker{Metrics: model.NewMetrics(), startTime: time.Now()}
}

// Elapsed returns time since the tracker was created.
func (t *Tracker) Elapsed() time.Duration { return time.Since(t.startTime) }

// TimedOut reports whether the global wall-clock ceiling has been
// exceeded. Callers recheck this at every iteration entry, inside the
// localize loop, inside the patch loop, after green, and after validate
// (spec §4.1).
func (t *Tracker) TimedOut() bool { return t.Elapsed() > GlobalTimeout }

// FinalizeRuntime stamps metrics.RuntimeSeconds — guaranteed to be set on
// every exit path (spec §7).
func (t *Tracker) FinalizeRuntime() {
	t.Metrics.RuntimeSeconds = t.Elapsed().Seconds()
}

// LocalizeBudgetExhausted reports whether the localize loop must force
// its final LLM call now: toolCallCount >= 15, or (index mode and
// symbolBlocksRead >= 10), or localizationApiCount >= the configured
// max.
func LocalizeBudgetExhausted(toolCallCount, symbolBlocksRead, localizationAPICount int, indexMode bool, maxLocalizationAPICalls int) bool {
	if toolCallCount >= 15 {
		return true
	}
	if indexMode && symbolBlocksRead >= 10 {
		return true
	}
	if localizationAPICount >= maxLocalizationAPICalls {
		return true
	}
	return false
}
