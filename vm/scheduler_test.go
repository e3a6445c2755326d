package vm

import (
	"testing"
	"time"
)

func TestGoTaskCompletes(t *testing.T) {
	rt := testRuntime(t)

	fut := rt.Go(form(rt, rt.Intern("+"), FromNumber(1), FromNumber(2)))
	if !fut.IsFuture() {
		t.Fatalf("go returned %s", rt.Render(fut))
	}
	rt.Scheduler.RunUntilIdle()

	got := rt.EvalBlocking(form(rt, rt.Intern("deref"),
		form(rt, rt.Intern("quote"), fut)))
	if got.Number() != 3 {
		t.Errorf("deref = %s, want 3", rt.Render(got))
	}
}

func TestGoSpecialForm(t *testing.T) {
	rt := testRuntime(t)

	// (def f (go (+ 10 20))) then drive the scheduler and deref.
	rt.EvalBlocking(form(rt, rt.Intern("def"), rt.Intern("f"),
		form(rt, rt.Intern("go"), form(rt, rt.Intern("+"), FromNumber(10), FromNumber(20)))))
	rt.Scheduler.RunUntilIdle()

	got := rt.EvalBlocking(form(rt, rt.Intern("deref"), rt.Intern("f")))
	if got.Number() != 30 {
		t.Errorf("deref = %s, want 30", rt.Render(got))
	}
}

func TestTaskSuspendsOnSleep(t *testing.T) {
	rt := testRuntime(t)

	// (go (do (sleep-ms 1) 7)) — the sleep parks the task on a bridge
	// future; RunUntilIdle must wait it out instead of dropping it.
	fut := rt.Go(form(rt, rt.Intern("do"),
		form(rt, rt.Intern("sleep-ms"), FromNumber(1)),
		FromNumber(7)))
	rt.Scheduler.RunUntilIdle()

	h := fut.AsFuture().Handle
	state, result, ok := rt.Futures.Poll(h)
	if !ok || state != FutureReady {
		t.Fatalf("future state = %v ok=%v after idle", state, ok)
	}
	if result.Number() != 7 {
		t.Errorf("task result = %s, want 7", rt.Render(result))
	}
}

func TestTaskErrorFailsCompletion(t *testing.T) {
	rt := testRuntime(t)

	fut := rt.Go(rt.Intern("no-such-thing"))
	rt.Scheduler.RunUntilIdle()

	state, result, ok := rt.Futures.Poll(fut.AsFuture().Handle)
	if !ok || state != FutureFailed {
		t.Fatalf("state = %v ok=%v, want failed", state, ok)
	}
	if !result.IsError() || result.AsError().Kind != ErrUndefinedSymbol {
		t.Errorf("failure result = %s", rt.Render(result))
	}
}

func TestNestedTasks(t *testing.T) {
	rt := testRuntime(t)

	// An inner go inside an outer task; the outer derefs it and the
	// scheduler interleaves both.
	inner := form(rt, rt.Intern("go"), form(rt, rt.Intern("+"), FromNumber(2), FromNumber(3)))
	outer := rt.Go(form(rt, rt.Intern("deref"), inner))
	rt.Scheduler.RunUntilIdle()

	state, result, ok := rt.Futures.Poll(outer.AsFuture().Handle)
	if !ok || state != FutureReady {
		t.Fatalf("state = %v ok=%v", state, ok)
	}
	if result.Number() != 5 {
		t.Errorf("outer result = %s, want 5", rt.Render(result))
	}
}

func TestCancelTask(t *testing.T) {
	rt := testRuntime(t)

	// Park a task on a long sleep, then cancel it.
	fut := rt.Go(form(rt, rt.Intern("sleep-ms"), FromNumber(10_000)))
	task := rt.Scheduler.Task(1)
	if task == nil {
		t.Fatal("task not registered")
	}
	if !rt.Scheduler.Step() {
		t.Fatal("nothing to step")
	}
	if got := rt.Scheduler.TaskState(task.ID()); got != TaskWaitingBridge {
		t.Fatalf("state after sleep = %v, want waiting-bridge", got)
	}

	if !rt.Scheduler.Cancel(task.ID()) {
		t.Fatal("cancel of live task returned false")
	}
	if rt.Scheduler.Cancel(task.ID()) {
		t.Error("second cancel should return false")
	}

	state, result, ok := rt.Futures.Poll(fut.AsFuture().Handle)
	if !ok || state != FutureFailed {
		t.Fatalf("completion state = %v ok=%v, want failed", state, ok)
	}
	if !result.IsError() || result.AsError().Kind != ErrCancelled {
		t.Errorf("completion result = %s", rt.Render(result))
	}

	// The timer's late delivery must not resurrect the task.
	rt.Scheduler.RunUntilIdle()
	if got := rt.Scheduler.TaskState(task.ID()); got != TaskCompleted {
		t.Errorf("state after cancel = %v", got)
	}
}

func TestCancelMidSliceDropsSuspension(t *testing.T) {
	rt := testRuntime(t)
	s := rt.Scheduler

	// Take the task out of the queue the way Step does, then cancel it
	// while it counts as running.
	rt.Go(FromNumber(1))
	s.mu.Lock()
	task := s.ready[0]
	s.ready = s.ready[1:]
	task.state = TaskRunning
	s.mu.Unlock()

	if !s.Cancel(task.ID()) {
		t.Fatal("cancel of running task returned false")
	}

	// The slice then suspends on a future that never resolves; park must
	// drop the suspension instead of resurrecting the completed task.
	pending := rt.Futures.Create()
	s.park(task, &Suspension{Future: pending, Cont: &Continuation{kind: ContDeref}})

	if got := s.TaskState(task.ID()); got != TaskCompleted {
		t.Fatalf("state after park = %v, want completed", got)
	}
	s.mu.Lock()
	parked := s.parked
	cont := task.cont
	s.mu.Unlock()
	if parked != 0 {
		t.Errorf("parked = %d after dropped suspension", parked)
	}
	if cont != nil {
		t.Error("cancelled task retained a continuation")
	}

	// With nothing genuinely parked the run loop terminates.
	done := make(chan struct{})
	go func() { s.RunUntilIdle(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunUntilIdle hung on a cancelled task's suspension")
	}
}

func TestCancelUnknownTask(t *testing.T) {
	rt := testRuntime(t)

	if rt.Scheduler.Cancel(999) {
		t.Error("cancel of unknown task should return false")
	}
}

func TestStaleHandleRecoverable(t *testing.T) {
	rt := testRuntime(t)
	m := rt.Mutator()

	h := rt.Futures.Create()
	rt.Futures.Complete(h, FromNumber(1))
	rt.Futures.Release(h)

	// Deref of a released future yields a recoverable error, not a crash.
	fut := m.NewFutureValue(h)
	got := rt.EvalBlocking(form(rt, rt.Intern("deref"),
		form(rt, rt.Intern("quote"), fut)))
	if !got.IsError() || got.AsError().Kind != ErrStaleHandle {
		t.Fatalf("stale deref = %s", rt.Render(got))
	}

	// The slot is reissued under a new generation; the old handle still
	// misses.
	h2 := rt.Futures.Create()
	if h2.ID != h.ID || h2.Gen == h.Gen {
		t.Fatalf("slot not reused with a new generation: %+v then %+v", h, h2)
	}
	if _, _, ok := rt.Futures.Poll(h); ok {
		t.Error("old handle resolved against the reissued slot")
	}
}

func TestFutureWaiters(t *testing.T) {
	rt := testRuntime(t)

	h := rt.Futures.Create()
	ran := make(chan Value, 1)
	if !rt.Futures.AddWaiter(h, func(v Value) { ran <- v }) {
		t.Fatal("addwaiter on live future returned false")
	}
	rt.Futures.Complete(h, FromNumber(4))

	select {
	case v := <-ran:
		if v.Number() != 4 {
			t.Errorf("waiter got %v", v.Number())
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never ran")
	}

	// A waiter added after resolution runs immediately.
	late := make(chan Value, 1)
	rt.Futures.AddWaiter(h, func(v Value) { late <- v })
	select {
	case v := <-late:
		if v.Number() != 4 {
			t.Errorf("late waiter got %v", v.Number())
		}
	default:
		t.Fatal("late waiter did not run synchronously")
	}

	// Resolving twice is a no-op.
	if rt.Futures.Complete(h, FromNumber(9)) {
		t.Error("second completion should report false")
	}
}

func TestSweepCompletedTasks(t *testing.T) {
	rt := testRuntime(t)

	for i := 0; i < 3; i++ {
		rt.Go(FromNumber(float64(i)))
	}
	rt.Scheduler.RunUntilIdle()

	if swept := rt.Scheduler.SweepCompleted(); swept != 3 {
		t.Errorf("swept %d tasks, want 3", swept)
	}
	if swept := rt.Scheduler.SweepCompleted(); swept != 0 {
		t.Errorf("second sweep removed %d", swept)
	}
}
