package vm

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Cooperative scheduler
// ---------------------------------------------------------------------------

// Scheduler multiplexes tasks onto the single goroutine that calls Run.
// Tasks run one evaluation step at a time: from spawn to the first
// suspension, then from each resumption to the next. Suspended tasks are
// re-queued by future waiters, which may fire from bridge goroutines;
// the wake channel keeps the run loop from busy-spinning while every
// task is parked.
type Scheduler struct {
	rt  *Runtime
	log commonlog.Logger

	mu     sync.Mutex
	ready  []*Task
	tasks  map[uint64]*Task
	nextID uint64
	parked int

	wake chan struct{}

	idleSleep time.Duration
}

// NewScheduler creates a scheduler for rt.
func NewScheduler(rt *Runtime, idleSleep time.Duration) *Scheduler {
	if idleSleep <= 0 {
		idleSleep = time.Millisecond
	}
	return &Scheduler{
		rt:        rt,
		log:       commonlog.GetLogger("blink.scheduler"),
		tasks:     make(map[uint64]*Task),
		nextID:    1,
		wake:      make(chan struct{}, 1),
		idleSleep: idleSleep,
	}
}

// SpawnExpr queues a task evaluating expr in env; completion is resolved
// with the task's result.
func (s *Scheduler) SpawnExpr(expr, env Value, completion FutureHandle) *Task {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	t := &Task{
		id:          s.nextID,
		tag:         uuid.NewString(),
		state:       TaskReady,
		expr:        expr,
		env:         env,
		resumeValue: Nil,
		result:      Nil,
		completion:  completion,
		ctx:         ctx,
		cancel:      cancel,
	}
	s.nextID++
	s.tasks[t.id] = t
	s.ready = append(s.ready, t)
	s.mu.Unlock()

	s.signal()
	s.log.Debugf("spawned task %d (%s)", t.id, t.tag)
	return t
}

// Task returns the task with the given ID, or nil.
func (s *Scheduler) Task(id uint64) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id]
}

// TaskState returns a task's current state; completed is reported for
// unknown IDs since completed tasks are eventually dropped.
func (s *Scheduler) TaskState(id uint64) TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		return t.state
	}
	return TaskCompleted
}

// ReadyCount returns the number of queued tasks.
func (s *Scheduler) ReadyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready)
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Step runs at most one task for one evaluation slice. Returns false if
// the ready queue was empty.
func (s *Scheduler) Step() bool {
	s.mu.Lock()
	if len(s.ready) == 0 {
		s.mu.Unlock()
		return false
	}
	t := s.ready[0]
	s.ready = s.ready[1:]
	t.state = TaskRunning
	s.mu.Unlock()

	s.run(t)
	return true
}

// RunUntilIdle steps tasks until the queue is empty and no task is
// parked. Parked-only phases block on the wake channel, yielding the
// processor and re-checking at the idle interval.
func (s *Scheduler) RunUntilIdle() {
	for {
		if s.Step() {
			continue
		}
		s.mu.Lock()
		parked := s.parked
		s.mu.Unlock()
		if parked == 0 {
			return
		}
		runtime.Gosched()
		select {
		case <-s.wake:
		case <-time.After(s.idleSleep):
		}
	}
}

// run performs one evaluation slice of t: the initial expression on the
// first slice, continuation resumption afterwards.
func (s *Scheduler) run(t *Task) {
	ectx := &EvalContext{rt: s.rt, m: s.rt.Heap.Mutator(), task: t}

	var r EvalResult
	s.mu.Lock()
	cont := t.cont
	resumeValue := t.resumeValue
	t.cont = nil
	s.mu.Unlock()

	if cont == nil {
		r = ectx.Eval(t.expr, t.env)
	} else {
		r = ectx.Resume(cont, resumeValue)
	}

	if r.IsSuspended() {
		s.park(t, r.Suspension())
		return
	}
	s.finish(t, r.Value())
}

// park saves the suspension and registers the task to wake on the
// future's resolution. A task cancelled while its slice ran is already
// completed; its suspension is dropped rather than resurrecting it.
func (s *Scheduler) park(t *Task, susp *Suspension) {
	s.mu.Lock()
	if t.state == TaskCompleted {
		s.mu.Unlock()
		return
	}
	t.cont = susp.Cont
	if s.rt.Futures.IsBridged(susp.Future) {
		t.state = TaskWaitingBridge
	} else {
		t.state = TaskSuspended
	}
	s.parked++
	s.mu.Unlock()

	if !s.rt.Futures.AddWaiter(susp.Future, func(result Value) {
		s.resumeTask(t, result)
	}) {
		// The handle went stale between suspension and registration;
		// surface it as the resume value.
		s.resumeTask(t, s.rt.Heap.Mutator().NewStaleHandleError("future"))
	}
}

// resumeTask re-queues a parked task with the value its frame chain
// resumes with. Safe to call from bridge goroutines. Results delivered
// to cancelled tasks are discarded.
func (s *Scheduler) resumeTask(t *Task, v Value) {
	s.mu.Lock()
	if t.state != TaskSuspended && t.state != TaskWaitingBridge {
		s.mu.Unlock()
		return
	}
	t.state = TaskReady
	t.resumeValue = v
	s.parked--
	s.ready = append(s.ready, t)
	s.mu.Unlock()

	s.signal()
}

// finish records the result and resolves the completion future. Error
// results fail the future so derefs of it propagate the error.
func (s *Scheduler) finish(t *Task, result Value) {
	s.mu.Lock()
	if t.state == TaskCompleted {
		s.mu.Unlock()
		return
	}
	t.state = TaskCompleted
	t.result = result
	s.mu.Unlock()

	t.cancel()
	if result.IsObject() && result.IsError() {
		s.rt.Futures.Fail(t.completion, result)
	} else {
		s.rt.Futures.Complete(t.completion, result)
	}
	s.log.Debugf("task %d completed", t.id)
}

// Cancel transitions a non-completed task to completed with a cancelled
// error, fails its completion future, and cancels its context so bridge
// work in flight can stop. A result later delivered by a waiter is
// discarded. Returns false for unknown or already completed tasks.
func (s *Scheduler) Cancel(id uint64) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.state == TaskCompleted {
		s.mu.Unlock()
		return false
	}
	if t.state == TaskSuspended || t.state == TaskWaitingBridge {
		s.parked--
	}
	for i, qt := range s.ready {
		if qt == t {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			break
		}
	}
	t.state = TaskCompleted
	t.cont = nil
	s.mu.Unlock()

	errVal := s.rt.Heap.Mutator().NewCancelledError()
	s.mu.Lock()
	t.result = errVal
	s.mu.Unlock()

	t.cancel()
	s.rt.Futures.Fail(t.completion, errVal)
	s.log.Infof("task %d cancelled", id)
	s.signal()
	return true
}

// SweepCompleted drops completed tasks from the table, returning the
// number removed. The registry sweeper calls this periodically.
func (s *Scheduler) SweepCompleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for id, t := range s.tasks {
		if t.state == TaskCompleted {
			delete(s.tasks, id)
			swept++
		}
	}
	return swept
}

// rootTasks pins the heap values of every live task; the heap uses this
// as a root provider.
func (s *Scheduler) rootTasks(visit func(Value)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		t.traceRefs(visit)
	}
}
