/*
Package scanner implements the scheduled compliance passes.

PURPOSE:
  Batch jobs that walk enabled courses and their learners to find
  due-for-reset, due-for-notification, and out-of-compliance cases,
  driving the reset engine and the notification dispatcher. Each pass
  is idempotent and safe to re-run; re-firing is prevented by durable
  state (reset markers, absence of live completions, the notifylast
  guard), never by in-process memory.

PASSES:
  CheckRecompletion:   equivalent-driven + direct expiry resets, then
                       grace notices and reminder/expiry notifications
  OutOfCompliance:     append idnumber-keyed export snapshots
  CacheCompletions:    incremental completion-bounds cache rebuild
  RepairCompletions:   zero time_completed -> NULL
  ResetCompletionCache: full cache wipe after config changes
  RemoveOldSynced:     purge synced export rows past retention

CONCURRENCY:
  Single-threaded by design; the external scheduler guarantees one
  instance per pass. Per-run lookups are memoized in a runCache that
  lives for exactly one invocation.

SEE ALSO:
  - recompletion: due-date and equivalence machinery
  - recompletion/reset: the state transition a reset performs
  - notify: the decision tree for emails
*/
package scanner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/warp/compliance-engine/notify"
	"github.com/warp/compliance-engine/recompletion"
	"github.com/warp/compliance-engine/recompletion/reset"
	"github.com/warp/compliance-engine/store/sqlite"
)

// Task names recorded in task_runs.
const (
	TaskCheckRecompletion    = "check-recompletion"
	TaskOutOfCompliance      = "out-of-compliance"
	TaskCacheCompletions     = "cache-completions"
	TaskRepairCompletions    = "repair-completions"
	TaskResetCompletionCache = "reset-completion-cache"
	TaskRemoveOldSynced      = "remove-old-synced"
)

// Options tunes installation-wide scanner behavior.
type Options struct {
	// NotifyHour is the local hour after which the daily reminder pass
	// may fire.
	NotifyHour int

	// BulkDay1 and BulkDay2 are the two digest days of the month.
	BulkDay1 int
	BulkDay2 int

	// Retention bounds how long synced export rows are kept.
	Retention time.Duration

	// Location is the installation timezone for calendar-day math.
	Location *time.Location
}

// DefaultOptions mirror the original installation defaults: digests on
// the 1st and 15th, reminders from midnight, 30-day retention.
func DefaultOptions() Options {
	return Options{
		NotifyHour: 0,
		BulkDay1:   1,
		BulkDay2:   15,
		Retention:  30 * 24 * time.Hour,
		Location:   time.UTC,
	}
}

// Scanner runs the scheduled passes against one store.
type Scanner struct {
	store      *sqlite.Store
	resolver   *recompletion.Resolver
	aggregator *recompletion.Aggregator
	calculator *recompletion.Calculator
	engine     *reset.Engine
	dispatcher *notify.Dispatcher
	opts       Options
	logger     *log.Logger

	// now is stubbed in tests. Defaults to time.Now.
	now func() time.Time
}

// New wires a Scanner over the store. The dispatcher is constructed by
// the caller so delivery and third-party config stay outside this
// package.
func New(store *sqlite.Store, dispatcher *notify.Dispatcher, events recompletion.EventSink, opts Options, logger *log.Logger) *Scanner {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if events == nil {
		events = recompletion.DiscardEvents{}
	}

	resolver := &recompletion.Resolver{Links: store}
	aggregator := &recompletion.Aggregator{
		Sources: []recompletion.CompletionSource{store.LiveSource(), store.ArchiveSource()},
	}
	calculator := &recompletion.Calculator{
		Settings:   store,
		Resolver:   resolver,
		Aggregator: aggregator,
		Cache:      store,
		Enrolments: store,
	}
	engine := &reset.Engine{
		Completions:  store,
		Grades:       store,
		Quizzes:      store,
		Scorms:       store,
		Assignments:  store,
		Certificates: store,
		Auth:         reset.AllowAll{},
		Cache:        store,
		Events:       events,
		Logger:       logger,
	}

	return &Scanner{
		store:      store,
		resolver:   resolver,
		aggregator: aggregator,
		calculator: calculator,
		engine:     engine,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the scanner's clock. Tests only.
func (sc *Scanner) SetClock(now func() time.Time) {
	sc.now = now
	sc.engine.Now = now
	if sc.dispatcher != nil {
		sc.dispatcher.Now = now
	}
}

func (sc *Scanner) logf(format string, args ...interface{}) {
	if sc.logger != nil {
		sc.logger.Printf("[Scanner] "+format, args...)
	}
}

// runTask brackets a pass with a task_runs audit row.
func (sc *Scanner) runTask(ctx context.Context, task string, fn func(ctx context.Context) (string, error)) error {
	started := sc.now().Unix()
	runID, err := sc.store.StartTaskRun(ctx, task, started)
	if err != nil {
		return fmt.Errorf("start %s: %w", task, err)
	}

	detail, err := fn(ctx)
	finished := sc.now().Unix()
	if err != nil {
		if ferr := sc.store.FinishTaskRun(ctx, runID, "failed", err.Error(), finished); ferr != nil {
			sc.logf("recording failure of %s: %v", task, ferr)
		}
		return fmt.Errorf("%s: %w", task, err)
	}
	if ferr := sc.store.FinishTaskRun(ctx, runID, "completed", detail, finished); ferr != nil {
		sc.logf("recording completion of %s: %v", task, ferr)
	}
	sc.logf("%s: %s", task, detail)
	return nil
}

// =============================================================================
// PER-RUN MEMO CACHE
// =============================================================================

// runCache memoizes course and config lookups within one pass
// invocation. Rebuilt every run, never shared.
type runCache struct {
	store   *sqlite.Store
	configs map[int64]recompletion.Config
	courses map[int64]*recompletion.Course
	users   map[int64]*recompletion.User
}

func newRunCache(store *sqlite.Store) *runCache {
	return &runCache{
		store:   store,
		configs: make(map[int64]recompletion.Config),
		courses: make(map[int64]*recompletion.Course),
		users:   make(map[int64]*recompletion.User),
	}
}

func (rc *runCache) config(ctx context.Context, courseID int64) (recompletion.Config, error) {
	if cfg, ok := rc.configs[courseID]; ok {
		return cfg, nil
	}
	raw, err := rc.store.CourseSettings(ctx, courseID)
	if err != nil {
		return recompletion.Config{}, err
	}
	cfg := recompletion.ParseConfig(raw)
	rc.configs[courseID] = cfg
	return cfg, nil
}

func (rc *runCache) course(ctx context.Context, courseID int64) (*recompletion.Course, error) {
	if c, ok := rc.courses[courseID]; ok {
		return c, nil
	}
	c, err := rc.store.Course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	rc.courses[courseID] = c
	return c, nil
}

func (rc *runCache) user(ctx context.Context, userID int64) (*recompletion.User, error) {
	if u, ok := rc.users[userID]; ok {
		return u, nil
	}
	u, err := rc.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	rc.users[userID] = u
	return u, nil
}
