package vm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Sweeper: periodic heap collection and registry cleanup
// ---------------------------------------------------------------------------

// SweepStats holds statistics from a single sweep.
type SweepStats struct {
	HeapLive       int
	HeapFreed      int
	FuturesSwept   int
	TasksSwept     int
	SweepDuration  time.Duration
	Timestamp      time.Time
}

// Sweeper periodically collects the heap and reclaims resolved futures
// and completed tasks. Long-running embedders would otherwise accumulate
// dead registry entries and unreachable keep-alive objects forever.
type Sweeper struct {
	rt       *Runtime
	log      commonlog.Logger
	interval time.Duration
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	sweepCount atomic.Uint64
	lastStats  atomic.Value // *SweepStats
}

// DefaultSweepInterval is the default interval between sweeps.
const DefaultSweepInterval = 30 * time.Second

// NewSweeper creates a sweeper for rt with the given interval. Use
// DefaultSweepInterval for the default (30s).
func NewSweeper(rt *Runtime, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	sw := &Sweeper{
		rt:       rt,
		log:      commonlog.GetLogger("blink.sweeper"),
		interval: interval,
	}
	sw.enabled.Store(true)
	return sw
}

// Start begins the periodic sweep goroutine. It is safe to call Start
// multiple times; only one sweep loop will run.
func (sw *Sweeper) Start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.stop != nil {
		return // already running
	}

	sw.stop = make(chan struct{})
	sw.stopped = make(chan struct{})

	// Capture channels locally so the goroutine does not read sw.stop or
	// sw.stopped after Stop() has nilled them out.
	stopCh := sw.stop
	stoppedCh := sw.stopped
	go sw.loop(stopCh, stoppedCh)
}

// Stop halts the periodic sweep goroutine and waits for it to finish.
// It is safe to call Stop multiple times or on a sweeper that was never
// started.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	stopCh := sw.stop
	stoppedCh := sw.stopped
	sw.stop = nil
	sw.stopped = nil
	sw.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled enables or disables sweeping. When disabled, the goroutine
// still runs but skips sweep operations.
func (sw *Sweeper) SetEnabled(enabled bool) {
	sw.enabled.Store(enabled)
}

// IsEnabled returns whether sweeping is currently enabled.
func (sw *Sweeper) IsEnabled() bool {
	return sw.enabled.Load()
}

// Interval returns the sweep interval.
func (sw *Sweeper) Interval() time.Duration {
	return sw.interval
}

// SweepCount returns the total number of sweeps performed.
func (sw *Sweeper) SweepCount() uint64 {
	return sw.sweepCount.Load()
}

// LastStats returns statistics from the most recent sweep, or nil if no
// sweep has been performed yet.
func (sw *Sweeper) LastStats() *SweepStats {
	v := sw.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*SweepStats)
}

// SweepNow performs an immediate sweep regardless of the timer.
func (sw *Sweeper) SweepNow() *SweepStats {
	return sw.sweep()
}

func (sw *Sweeper) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if sw.enabled.Load() {
				sw.sweep()
			}
		}
	}
}

// sweep performs one pass: completed tasks first so their values stop
// being roots, resolved futures next for the same reason, then the heap
// collection that those releases unblock.
func (sw *Sweeper) sweep() *SweepStats {
	start := time.Now()
	stats := &SweepStats{Timestamp: start}

	stats.TasksSwept = sw.rt.Scheduler.SweepCompleted()
	stats.FuturesSwept = sw.rt.Futures.SweepResolved()

	heapStats := sw.rt.Heap.Collect()
	stats.HeapLive = heapStats.Live
	stats.HeapFreed = heapStats.Freed

	stats.SweepDuration = time.Since(start)

	sw.sweepCount.Add(1)
	sw.lastStats.Store(stats)
	sw.log.Debugf("sweep: %d live, %d freed, %d futures, %d tasks",
		stats.HeapLive, stats.HeapFreed, stats.FuturesSwept, stats.TasksSwept)
	return stats
}
