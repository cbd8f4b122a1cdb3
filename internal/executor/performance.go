package executor

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/assert"
	"github.com/programme-lv/grader/internal/scoring"
	"github.com/programme-lv/grader/internal/spec"
	"github.com/programme-lv/grader/internal/workdir"
)

// IterationEnvVar tells a stress generator which iteration it produces.
const IterationEnvVar = "GRADER_ITERATION"

// RunPerformance runs each benchmark as one pool job in its own directory.
func (e *Env) RunPerformance(ctx context.Context, scope Scope, g *spec.PerformanceGroup) (*scoring.Node, error) {
	scope = scope.Child(g.Name, g.Env, g.Timeout)
	e.Gatherer.StartGroup(scope.Path)

	node := scoring.NewInner(api.GroupNode, g.Name)
	leaves := make([]*scoring.Node, len(g.Benchmarks))

	eg, ctx := errgroup.WithContext(ctx)
	for i := range g.Benchmarks {
		eg.Go(func() error {
			return e.Pool.Do(ctx, func(ctx context.Context) {
				leaves[i] = e.runBenchmark(ctx, scope, g, &g.Benchmarks[i])
				e.finishLeaf(scope, leaves[i])
			})
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	node.Add(leaves...)
	return node, nil
}

type benchmarkRun struct {
	scope   Scope
	inherit bool
	dir     *workdir.Dir
	b       *spec.Benchmark
	args    []string
	leaf    *scoring.Node
}

func (e *Env) runBenchmark(ctx context.Context, scope Scope, g *spec.PerformanceGroup, b *spec.Benchmark) *scoring.Node {
	leaf := scoring.NewLeaf(api.BenchmarkNode, b.Name, b.Weight, api.Passed)

	dir, err := e.Arena.Allocate(b.Name)
	if err == nil {
		defer dir.Close()
		err = writeFixtures(dir, g.Files)
	}
	if err != nil {
		leaf.Status = api.Errored
		leaf.Diagnostics = []api.Diagnostic{errorDiagnostic("workdir", err)}
		return leaf
	}

	run := &benchmarkRun{
		scope:   scope,
		inherit: g.InheritEnv,
		dir:     dir,
		b:       b,
		args:    b.Case.ArgVectors()[0],
		leaf:    leaf,
	}

	passed, ok := e.mainRun(ctx, run)
	if !ok {
		return leaf
	}
	if b.Stress != nil {
		stable, ok := e.stressRuns(ctx, run)
		if !ok {
			return leaf
		}
		passed = passed && stable
	}
	if b.Profiling != nil {
		clean, ok := e.profilingRun(ctx, run)
		if !ok {
			return leaf
		}
		passed = passed && clean
	}
	leaf.Status = statusOf(passed)
	return leaf
}

// target runs the benchmarked program once with stdin and checks it.
func (e *Env) target(ctx context.Context, run *benchmarkRun, stdin []byte, check bool) (bool, []api.Diagnostic, bool) {
	c := &run.b.Case
	inv, err := e.invocation(run.scope, spec.Command{Program: c.Program}, run.args, invocationOpts{
		dir:     run.dir.Path(),
		stdin:   stdin,
		env:     c.Env,
		timeout: c.Timeout,
		inherit: run.inherit,
	})
	if err != nil {
		run.leaf.Status = api.Errored
		run.leaf.Diagnostics = append(run.leaf.Diagnostics, errorDiagnostic("launch", err))
		return false, nil, false
	}
	out := e.Runner.Run(ctx, inv)
	run.leaf.Runs = append(run.leaf.Runs, runData(run.args, stdin, out))

	res := assert.Evaluate(out, c.Expect, run.dir.Path())
	diags := res.Diagnostics
	passed := res.Passed
	if check {
		for _, d := range limitDiagnostics(run.b, out) {
			diags = append(diags, d)
			passed = passed && d.Passed
		}
	}
	return passed, diags, true
}

func limitDiagnostics(b *spec.Benchmark, out spec.Outcome) []api.Diagnostic {
	var diags []api.Diagnostic
	if b.MaxTime > 0 {
		d := api.Diagnostic{
			Predicate: "time",
			Kind:      assert.KindRange,
			Expected:  fmt.Sprintf("<= %v", b.MaxTime),
			Actual:    out.Duration.String(),
			Passed:    out.Duration <= b.MaxTime,
		}
		if !d.Passed {
			d.Message = "time limit exceeded"
		}
		diags = append(diags, d)
	}
	if b.MaxMemoryKiB > 0 {
		d := api.Diagnostic{
			Predicate: "memory",
			Kind:      assert.KindRange,
			Expected:  fmt.Sprintf("<= %d KiB", b.MaxMemoryKiB),
			Actual:    fmt.Sprintf("%d KiB", out.PeakMemoryKiB),
			Passed:    out.PeakMemoryKiB <= b.MaxMemoryKiB,
		}
		if !d.Passed {
			d.Message = "memory limit exceeded"
		}
		diags = append(diags, d)
	}
	return diags
}

func (e *Env) mainRun(ctx context.Context, run *benchmarkRun) (bool, bool) {
	passed, diags, ok := e.target(ctx, run, run.b.Case.Stdin, true)
	run.leaf.Diagnostics = append(run.leaf.Diagnostics, diags...)
	return passed, ok
}

// stressRuns repeats the target with generated inputs; the benchmark is
// stable when enough iterations pass.
func (e *Env) stressRuns(ctx context.Context, run *benchmarkRun) (bool, bool) {
	st := run.b.Stress
	if st.Iterations <= 0 {
		return true, true
	}

	succeeded := 0
	var firstFailure *api.Diagnostic
	for i := 1; i <= st.Iterations; i++ {
		inv, err := e.invocation(run.scope, st.Generator, nil, invocationOpts{
			dir:     run.dir.Path(),
			env:     map[string]string{IterationEnvVar: strconv.Itoa(i)},
			inherit: run.inherit,
		})
		if err != nil {
			run.leaf.Status = api.Errored
			run.leaf.Diagnostics = append(run.leaf.Diagnostics, errorDiagnostic("generator", err))
			return false, false
		}
		gen := e.Runner.Run(ctx, inv)
		if failure := outcomeFailure(gen); failure != "" {
			if firstFailure == nil {
				firstFailure = &api.Diagnostic{
					Predicate: "generator",
					Kind:      assert.KindExecution,
					Actual:    string(gen.Stderr),
					Message:   fmt.Sprintf("iteration %d: generator %s", i, failure),
				}
			}
			continue
		}

		passed, diags, ok := e.target(ctx, run, gen.Stdout, true)
		if !ok {
			return false, false
		}
		if passed {
			succeeded++
			continue
		}
		if firstFailure == nil {
			for _, d := range diags {
				if !d.Passed {
					d.Message = fmt.Sprintf("iteration %d: %s", i, d.Message)
					firstFailure = &d
					break
				}
			}
		}
	}

	ratio := float64(succeeded) / float64(st.Iterations)
	stable := ratio >= st.StabilityThreshold
	d := api.Diagnostic{
		Predicate: "stability",
		Kind:      assert.KindRange,
		Expected:  fmt.Sprintf(">= %.2f", st.StabilityThreshold),
		Actual:    fmt.Sprintf("%.2f (%d/%d)", ratio, succeeded, st.Iterations),
		Passed:    stable,
	}
	if !stable {
		d.Message = "unstable under stress"
	}
	run.leaf.Diagnostics = append(run.leaf.Diagnostics, d)
	if firstFailure != nil {
		run.leaf.Diagnostics = append(run.leaf.Diagnostics, *firstFailure)
	}
	return stable, true
}

// profilingRun wraps the target in the profiling tool once. A leak is
// signalled by the tool's configured exit code, or by any non-zero exit
// when none is configured.
func (e *Env) profilingRun(ctx context.Context, run *benchmarkRun) (bool, bool) {
	prof := run.b.Profiling
	c := &run.b.Case

	target, err := e.Programs.Resolve(c.Program)
	if err != nil {
		run.leaf.Status = api.Errored
		run.leaf.Diagnostics = append(run.leaf.Diagnostics, errorDiagnostic("launch", err))
		return false, false
	}
	args := append([]string{target.Program}, target.Args...)
	args = append(args, run.args...)

	inv, err := e.invocation(run.scope, prof.Tool, args, invocationOpts{
		dir:     run.dir.Path(),
		stdin:   c.Stdin,
		env:     c.Env,
		timeout: c.Timeout,
		inherit: run.inherit,
	})
	if err != nil {
		run.leaf.Status = api.Errored
		run.leaf.Diagnostics = append(run.leaf.Diagnostics, errorDiagnostic("profiler", err))
		return false, false
	}
	out := e.Runner.Run(ctx, inv)
	run.leaf.Runs = append(run.leaf.Runs, runData(inv.Args, c.Stdin, out))

	if out.Tag != spec.Completed {
		run.leaf.Diagnostics = append(run.leaf.Diagnostics, api.Diagnostic{
			Predicate: "leak",
			Kind:      assert.KindExecution,
			Message:   "profiler did not complete: " + out.LaunchError,
		})
		return prof.MemoryLeaks != spec.FailOnLeak, true
	}

	leaked := out.Signal == 0 && out.ExitCode != 0
	if prof.LeakExitCode != nil {
		leaked = out.Signal == 0 && out.ExitCode == *prof.LeakExitCode
	}
	d := api.Diagnostic{
		Predicate: "leak",
		Kind:      assert.KindExact,
		Expected:  "no leak",
		Actual:    "no leak",
		Passed:    !leaked,
	}
	if leaked {
		d.Actual = fmt.Sprintf("exit status %d", out.ExitCode)
		d.Message = "memory leak detected"
		if prof.MemoryLeaks == spec.WarnOnLeak {
			d.Message = "warning: memory leak detected"
		}
	}
	run.leaf.Diagnostics = append(run.leaf.Diagnostics, d)
	return !leaked || prof.MemoryLeaks == spec.WarnOnLeak, true
}
