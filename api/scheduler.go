/*
scheduler.go - Automated accrual scheduler

PURPOSE:
  Periodically runs the month-end accrual batch so that elapsed profit
  periods are closed without an operator calling the API.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick invokes one RunAccrual as of today
  - A tick that finds nothing to do is a no-op: the engine skips periods
    that already exist, so overlapping or repeated ticks are harmless
  - Records every run for audit and UI display (accrual_runs table)

CONFIGURATION:
  - CheckInterval: How often to run (default: 24 hours)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAccrualScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunAccrual endpoint (manual trigger)
  - ledger/accrual.go: AccrualEngine
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/investment-engine/ledger"
)

// AccrualScheduler runs the monthly accrual batch on a timer.
type AccrualScheduler struct {
	Engine        *ledger.AccrualEngine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAccrualScheduler creates a new scheduler.
func NewAccrualScheduler(h *Handler) *AccrualScheduler {
	return &AccrualScheduler{
		Engine:        h.Engine,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (as *AccrualScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	log.Printf("[Scheduler] Started with check interval: %v", as.CheckInterval)
}

// Stop stops the scheduler.
func (as *AccrualScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

// RunNow triggers one accrual batch outside the timer.
func (as *AccrualScheduler) RunNow() {
	as.runAccrual()
}

func (as *AccrualScheduler) run() {
	defer as.wg.Done()

	// Run immediately on start
	as.runAccrual()

	for {
		select {
		case <-as.ticker.C:
			as.runAccrual()
		case <-as.stop:
			return
		}
	}
}

func (as *AccrualScheduler) runAccrual() {
	ctx := context.Background()
	asOf := ledger.Today()

	log.Printf("[Scheduler] Running accrual as of %s", asOf)

	result, err := as.Engine.RunAccrual(ctx, asOf)
	if err != nil {
		log.Printf("[Scheduler] Accrual run failed: %v", err)
		return
	}

	if result.PeriodsCreated == 0 && len(result.Completed) == 0 {
		log.Printf("[Scheduler] Nothing to do (skipped %d existing periods)", result.PeriodsSkipped)
		return
	}
	log.Printf("[Scheduler] Run %s: created %d periods, skipped %d, matured %d investments",
		result.RunID, result.PeriodsCreated, result.PeriodsSkipped, len(result.Completed))
}
