// Package executor turns test groups into scored subtrees. Each strategy
// submits its process-launching work to the pool and builds an unsealed
// scoring.Node; a Go error is returned only when the run is cancelled.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal"
	"github.com/programme-lv/grader/internal/assert"
	"github.com/programme-lv/grader/internal/pool"
	"github.com/programme-lv/grader/internal/runner"
	"github.com/programme-lv/grader/internal/scoring"
	"github.com/programme-lv/grader/internal/spec"
	"github.com/programme-lv/grader/internal/workdir"
)

type Env struct {
	Runner   *runner.Runner
	Arena    *workdir.Arena
	Programs spec.ProgramSet
	Pool     *pool.Pool
	Gatherer internal.ResultGatherer
	Logger   *slog.Logger
}

// Scope is what a group inherits from the sections above it.
type Scope struct {
	Path    []string
	Env     []map[string]string
	Timeout time.Duration
}

// Child extends the scope by one level; a zero timeout keeps the parent's.
func (s Scope) Child(name string, env map[string]string, timeout time.Duration) Scope {
	child := Scope{
		Path:    append(s.Path[:len(s.Path):len(s.Path)], name),
		Env:     s.Env[:len(s.Env):len(s.Env)],
		Timeout: s.Timeout,
	}
	if env != nil {
		child.Env = append(child.Env, env)
	}
	if timeout > 0 {
		child.Timeout = timeout
	}
	return child
}

// Run dispatches a group to its strategy.
func (e *Env) Run(ctx context.Context, scope Scope, g *spec.TestGroup) (*scoring.Node, error) {
	switch g.Kind {
	case spec.UnitKind:
		return e.RunUnit(ctx, scope, g.Unit)
	case spec.IntegrationKind:
		return e.RunIntegration(ctx, scope, g.Integration)
	case spec.PerformanceKind:
		return e.RunPerformance(ctx, scope, g.Performance)
	}
	return nil, fmt.Errorf("unknown group kind %q", g.Kind)
}

type invocationOpts struct {
	dir     string
	stdin   []byte
	env     map[string]string
	timeout time.Duration
	inherit bool
}

// invocation resolves cmd and appends args to the program's template.
func (e *Env) invocation(scope Scope, cmd spec.Command, args []string, opts invocationOpts) (spec.Invocation, error) {
	resolved, err := e.Programs.Resolve(cmd.Program)
	if err != nil {
		return spec.Invocation{}, err
	}
	fullArgs := append([]string(nil), resolved.Args...)
	fullArgs = append(fullArgs, cmd.Args...)
	fullArgs = append(fullArgs, args...)

	layers := scope.Env
	if opts.env != nil {
		layers = append(layers[:len(layers):len(layers)], opts.env)
	}
	timeout := scope.Timeout
	if opts.timeout > 0 {
		timeout = opts.timeout
	}
	return spec.Invocation{
		Path:    resolved.Program,
		Args:    fullArgs,
		Env:     spec.MergeEnv(opts.inherit, layers...),
		Dir:     opts.dir,
		Stdin:   opts.stdin,
		Timeout: timeout,
	}, nil
}

func writeFixtures(dir *workdir.Dir, files []spec.Fixture) error {
	for _, f := range files {
		if err := dir.AddFile(f.Path, f.Content); err != nil {
			return fmt.Errorf("failed to write fixture %s: %w", f.Path, err)
		}
	}
	return nil
}

func runData(args []string, stdin []byte, o spec.Outcome) api.RunData {
	data := api.RunData{
		Args:            args,
		Stdin:           string(stdin),
		Stdout:          string(o.Stdout),
		Stderr:          string(o.Stderr),
		Tag:             string(o.Tag),
		ExitCode:        int64(o.ExitCode),
		WallMillis:      o.Duration.Milliseconds(),
		MemoryKiBytes:   o.PeakMemoryKiB,
		StdoutTruncated: o.StdoutTruncated,
		StderrTruncated: o.StderrTruncated,
	}
	if o.Signal != 0 {
		sig := int64(o.Signal)
		data.ExitSignal = &sig
	}
	if o.LaunchError != "" {
		msg := o.LaunchError
		data.ErrorMessage = &msg
	}
	return data
}

func errorDiagnostic(predicate string, err error) api.Diagnostic {
	return api.Diagnostic{
		Predicate: predicate,
		Kind:      assert.KindExecution,
		Message:   err.Error(),
	}
}

// outcomeFailure describes why an auxiliary command (setup, teardown,
// generator) did not succeed; empty when it did.
func outcomeFailure(o spec.Outcome) string {
	switch {
	case o.Tag == spec.LaunchFailed:
		return o.LaunchError
	case o.Tag == spec.TimedOut:
		return o.LaunchError
	case o.Signal != 0:
		return fmt.Sprintf("terminated by signal %d", o.Signal)
	case o.ExitCode != 0:
		return fmt.Sprintf("exited with status %d", o.ExitCode)
	}
	return ""
}

// finishLeaf reports a finished leaf to the gatherer.
func (e *Env) finishLeaf(scope Scope, leaf *scoring.Node) {
	sealed, err := scoring.Seal(leaf, spec.Weighted)
	if err != nil {
		// the final seal reports it
		return
	}
	path := append(scope.Path[:len(scope.Path):len(scope.Path)], leaf.Name)
	e.Gatherer.FinishLeaf(path, sealed)
}

func statusOf(passed bool) api.Status {
	if passed {
		return api.Passed
	}
	return api.Failed
}

// erroredLeaves marks every case Errored with the same diagnostic.
func erroredLeaves(kind api.NodeKind, cases []spec.TestCase, d api.Diagnostic) []*scoring.Node {
	leaves := make([]*scoring.Node, len(cases))
	for i, c := range cases {
		leaf := scoring.NewLeaf(kind, c.Name, c.Weight, api.Errored)
		leaf.Diagnostics = []api.Diagnostic{d}
		leaves[i] = leaf
	}
	return leaves
}
