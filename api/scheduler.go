/*
scheduler.go - Background pass scheduler

PURPOSE:
  Runs the scanner's passes on a timer so compliance state stays
  current without manual triggers: the fast recompletion sweep on a
  short interval, the export and housekeeping passes once a day.

DESIGN:
  - One goroutine, two tickers
  - CheckInterval drives check-recompletion (resets + notifications)
  - DailyInterval drives out-of-compliance, cache-completions,
    repair-completions and remove-old-synced
  - reset-completion-cache never runs on a timer; it is a manual
    repair via POST /api/admin/passes/reset-completion-cache

CONFIGURATION:
  - CheckInterval: How often the recompletion sweep runs (default: 1 hour)
  - DailyInterval: How often the slow passes run (default: 24 hours)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewPassScheduler(sc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerPass endpoint (manual passes)
  - scanner/scanner.go: The passes themselves
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/compliance-engine/scanner"
)

// PassScheduler runs the scanner's passes on a timer.
type PassScheduler struct {
	Scanner       *scanner.Scanner
	CheckInterval time.Duration
	DailyInterval time.Duration
	Enabled       bool

	checkTicker *time.Ticker
	dailyTicker *time.Ticker
	stop        chan bool
	wg          sync.WaitGroup
	mu          sync.Mutex
}

// NewPassScheduler creates a new scheduler.
func NewPassScheduler(sc *scanner.Scanner) *PassScheduler {
	return &PassScheduler{
		Scanner:       sc,
		CheckInterval: 1 * time.Hour,
		DailyInterval: 24 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ps *PassScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ps.checkTicker = time.NewTicker(ps.CheckInterval)
	ps.dailyTicker = time.NewTicker(ps.DailyInterval)
	ps.wg.Add(1)

	go ps.run()

	log.Printf("[Scheduler] Started: check every %v, daily passes every %v", ps.CheckInterval, ps.DailyInterval)
}

// Stop stops the scheduler.
func (ps *PassScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.checkTicker != nil {
		ps.checkTicker.Stop()
		ps.dailyTicker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ps *PassScheduler) run() {
	defer ps.wg.Done()

	// Run everything once on start
	ps.runCheck()
	ps.runDaily()

	for {
		select {
		case <-ps.checkTicker.C:
			ps.runCheck()
		case <-ps.dailyTicker.C:
			ps.runDaily()
		case <-ps.stop:
			return
		}
	}
}

// RunNow forces a full sweep outside the timer.
func (ps *PassScheduler) RunNow() {
	ps.runCheck()
	ps.runDaily()
}

func (ps *PassScheduler) runCheck() {
	ctx := context.Background()
	if err := ps.Scanner.CheckRecompletion(ctx); err != nil {
		log.Printf("[Scheduler] %s failed: %v", scanner.TaskCheckRecompletion, err)
	}
}

func (ps *PassScheduler) runDaily() {
	ctx := context.Background()
	passes := []struct {
		task string
		fn   func(context.Context) error
	}{
		{scanner.TaskOutOfCompliance, ps.Scanner.OutOfCompliance},
		{scanner.TaskCacheCompletions, ps.Scanner.CacheCompletions},
		{scanner.TaskRepairCompletions, ps.Scanner.RepairCompletions},
		{scanner.TaskRemoveOldSynced, ps.Scanner.RemoveOldSynced},
	}
	for _, p := range passes {
		if err := p.fn(ctx); err != nil {
			log.Printf("[Scheduler] %s failed: %v", p.task, err)
		}
	}
}
