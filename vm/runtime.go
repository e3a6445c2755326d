package vm

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Runtime
// ---------------------------------------------------------------------------

// Runtime is the root object owning every table and registry: symbols,
// heap, natives, futures, modules, scheduler, sweeper. There are no
// package-level singletons; multiple runtimes coexist in one process and
// values never cross between them. Create with NewRuntime, tear down
// with Close.
type Runtime struct {
	ID  string
	cfg *Config
	log commonlog.Logger

	Symbols   *SymbolTable
	Heap      *Heap
	Natives   *NativeRegistry
	Futures   *FutureRegistry
	Modules   *ModuleRegistry
	Scheduler *Scheduler

	sweeper *Sweeper

	globalEnv    Value
	mainModule   *Module
	specialForms map[uint32]sfKind
	ampSymbol    uint32

	closeOnce sync.Once
}

// NewRuntime builds a runtime from cfg (nil means defaults), boots the
// global environment with the built-in natives, and starts the
// background sweeper if enabled.
func NewRuntime(cfg *Config) *Runtime {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	rt := &Runtime{
		ID:      uuid.NewString(),
		cfg:     cfg,
		log:     commonlog.GetLogger("blink.runtime"),
		Symbols: NewSymbolTable(),
		Heap:    NewHeap(),
		Natives: NewNativeRegistry(),
		Futures: NewFutureRegistry(),
		Modules: NewModuleRegistry(),
	}
	rt.Scheduler = NewScheduler(rt, cfg.Scheduler.IdleSleep.Duration)

	rt.specialForms = make(map[uint32]sfKind, len(specialFormNames))
	for name, kind := range specialFormNames {
		rt.specialForms[rt.Symbols.Intern(name)] = kind
	}
	rt.ampSymbol = rt.Symbols.Intern("&")

	m := rt.Heap.Mutator()
	rt.globalEnv = m.NewEnv(Nil)
	rt.registerBuiltins(m)
	rt.mainModule = rt.Modules.Define(m, "main", rt.globalEnv)

	rt.Heap.AddRoot(rt.globalEnv)
	rt.Heap.AddRootProvider(rt.Modules.rootEnvs)
	rt.Heap.AddRootProvider(rt.Futures.rootResults)
	rt.Heap.AddRootProvider(rt.Scheduler.rootTasks)

	rt.sweeper = NewSweeper(rt, cfg.Heap.SweepInterval.Duration)
	if cfg.Heap.SweepEnabled {
		rt.sweeper.Start()
	}

	rt.log.Infof("runtime %s initialized", rt.ID)
	return rt
}

// Close stops the background sweeper. Idempotent.
func (rt *Runtime) Close() {
	rt.closeOnce.Do(func() {
		rt.sweeper.Stop()
		rt.log.Infof("runtime %s closed", rt.ID)
	})
}

// Sweeper returns the background heap sweeper.
func (rt *Runtime) Sweeper() *Sweeper { return rt.sweeper }

// GlobalEnv returns the environment holding the built-ins.
func (rt *Runtime) GlobalEnv() Value { return rt.globalEnv }

// MainModule returns the default module evaluation happens in.
func (rt *Runtime) MainModule() *Module { return rt.mainModule }

// Mutator returns the calling goroutine's allocation context.
func (rt *Runtime) Mutator() *Mutator { return rt.Heap.Mutator() }

// NewContext returns a blocking evaluation context for host callers: a
// deref of a pending future parks the goroutine instead of suspending.
func (rt *Runtime) NewContext() *EvalContext {
	return &EvalContext{rt: rt, m: rt.Heap.Mutator(), blocking: true}
}

// EvalBlocking evaluates form in the main module, resolving any
// suspension by blocking the calling goroutine.
func (rt *Runtime) EvalBlocking(form Value) Value {
	ctx := rt.NewContext()
	return ctx.evalSettled(form, rt.mainModule.Env)
}

// Go spawns a scheduler task evaluating form in the main module and
// returns its completion future as a value.
func (rt *Runtime) Go(form Value) Value {
	h := rt.Futures.Create()
	rt.Scheduler.SpawnExpr(form, rt.mainModule.Env, h)
	return rt.Heap.Mutator().NewFutureValue(h)
}

// BridgeFuture runs fn on its own goroutine and returns a future
// resolved with its result. This is the seam between cooperative tasks
// and real asynchronous work: a task derefs the returned future,
// suspends, and is re-queued when fn delivers. fn should honor ctx for
// cancellation.
func (rt *Runtime) BridgeFuture(ctx context.Context, fn func(ctx context.Context) Value) FutureHandle {
	h := rt.Futures.Create()
	rt.Futures.MarkBridged(h)
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer rt.Heap.ReleaseMutator()
		v := fn(ctx)
		if v.IsObject() && v.IsError() {
			rt.Futures.Fail(h, v)
		} else {
			rt.Futures.Complete(h, v)
		}
	}()
	return h
}

// Intern is a convenience for building expressions programmatically.
func (rt *Runtime) Intern(name string) Value {
	return rt.Symbols.SymbolValue(name)
}

// Keyword is a convenience for building keyword values.
func (rt *Runtime) Keyword(name string) Value {
	return rt.Symbols.KeywordValue(name)
}
