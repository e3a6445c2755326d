// blink runtime demo driver.
// Builds expressions programmatically (the runtime core carries no
// reader), evaluates them, and prints the results.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/blink-lang/blink/vm"
)

func main() {
	configPath := flag.String("config", "", "Runtime config file (TOML)")
	verbosity := flag.Int("verbosity", 0, "Log verbosity (0..2)")
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	var cfg *vm.Config
	if *configPath != "" {
		loaded, err := vm.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	rt := vm.NewRuntime(cfg)
	defer rt.Close()
	m := rt.Mutator()

	// (def greeting "hello, blink")
	show(rt, rt.EvalBlocking(m.ListOf(
		rt.Intern("def"),
		rt.Intern("greeting"),
		m.NewStr("hello, blink"),
	)))

	// (def add2 (fn [x] (+ x 2)))
	show(rt, rt.EvalBlocking(m.ListOf(
		rt.Intern("def"),
		rt.Intern("add2"),
		m.ListOf(
			rt.Intern("fn"),
			m.VectorFromSlice([]vm.Value{rt.Intern("x")}),
			m.ListOf(rt.Intern("+"), rt.Intern("x"), vm.FromNumber(2)),
		),
	)))

	// (add2 40)
	show(rt, rt.EvalBlocking(m.ListOf(rt.Intern("add2"), vm.FromNumber(40))))

	// (go (do (sleep-ms 5) (+ 1 2 3))), then drive the scheduler and
	// deref the completion future.
	fut := rt.EvalBlocking(m.ListOf(
		rt.Intern("go"),
		m.ListOf(
			rt.Intern("do"),
			m.ListOf(rt.Intern("sleep-ms"), vm.FromNumber(5)),
			m.ListOf(rt.Intern("+"), vm.FromNumber(1), vm.FromNumber(2), vm.FromNumber(3)),
		),
	))
	rt.Scheduler.RunUntilIdle()
	show(rt, rt.EvalBlocking(m.ListOf(rt.Intern("deref"), fut)))

	// (try (first (list)) (fn [e] "recovered"))
	show(rt, rt.EvalBlocking(m.ListOf(
		rt.Intern("try"),
		m.ListOf(rt.Intern("first"), m.ListOf(rt.Intern("list"))),
		m.ListOf(
			rt.Intern("fn"),
			m.VectorFromSlice([]vm.Value{rt.Intern("e")}),
			m.NewStr("recovered"),
		),
	)))
}

func show(rt *vm.Runtime, v vm.Value) {
	fmt.Println(rt.Render(v))
}
