package vm

import "context"

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

// TaskState is the lifecycle of a scheduler task.
type TaskState int32

const (
	// TaskReady: queued, will run on a future scheduler pass.
	TaskReady TaskState = iota
	// TaskRunning: currently evaluating on the scheduler goroutine.
	TaskRunning
	// TaskSuspended: parked on a future another task will resolve.
	TaskSuspended
	// TaskWaitingBridge: parked on a future a host goroutine resolves.
	TaskWaitingBridge
	// TaskCompleted: finished, cancelled, or failed.
	TaskCompleted
)

// String returns the state name.
func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskSuspended:
		return "suspended"
	case TaskWaitingBridge:
		return "waiting-bridge"
	case TaskCompleted:
		return "completed"
	default:
		return "invalid"
	}
}

// Task is one cooperatively scheduled evaluation. A task either has an
// initial expression to evaluate or a saved continuation plus the value
// to resume it with; the scheduler alternates it between Ready and a
// parked state until evaluation completes, then resolves its completion
// future.
type Task struct {
	id  uint64
	tag string // uuid, for logs and bridge correlation

	// Guarded by the scheduler mutex.
	state       TaskState
	expr        Value
	env         Value
	cont        *Continuation
	resumeValue Value
	result      Value

	completion FutureHandle

	ctx    context.Context
	cancel context.CancelFunc
}

// ID returns the task's scheduler ID.
func (t *Task) ID() uint64 { return t.id }

// Tag returns the task's UUID tag.
func (t *Task) Tag() string { return t.tag }

// Completion returns the handle of the future resolved with the task's
// result.
func (t *Task) Completion() FutureHandle { return t.completion }

// Context returns the task's context; bridges spawned on behalf of the
// task should honor it so cancellation propagates to in-flight I/O.
func (t *Task) Context() context.Context { return t.ctx }

// traceRefs pins the heap values a live task holds.
func (t *Task) traceRefs(visit func(Value)) {
	visit(t.expr)
	visit(t.env)
	visit(t.resumeValue)
	visit(t.result)
	if t.cont != nil {
		t.cont.traceRefs(visit)
	}
}
