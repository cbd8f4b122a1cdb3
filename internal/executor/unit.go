package executor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/assert"
	"github.com/programme-lv/grader/internal/pool"
	"github.com/programme-lv/grader/internal/scoring"
	"github.com/programme-lv/grader/internal/spec"
	"github.com/programme-lv/grader/internal/workdir"
)

// RunUnit grades every suite of g concurrently. Cases are independent: each
// argument vector runs in its own copy of the suite's prepared directory.
func (e *Env) RunUnit(ctx context.Context, scope Scope, g *spec.UnitGroup) (*scoring.Node, error) {
	scope = scope.Child(g.Name, g.Env, g.Timeout)
	e.Gatherer.StartGroup(scope.Path)

	node := scoring.NewInner(api.GroupNode, g.Name)
	suites := make([]*scoring.Node, len(g.Suites))

	eg, ctx := errgroup.WithContext(ctx)
	for i := range g.Suites {
		eg.Go(func() error {
			var err error
			suites[i], err = e.runSuite(ctx, scope, g, &g.Suites[i])
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	node.Add(suites...)
	return node, nil
}

func (e *Env) runSuite(ctx context.Context, groupScope Scope, g *spec.UnitGroup, suite *spec.UnitSuite) (*scoring.Node, error) {
	scope := groupScope.Child(suite.Name, nil, 0)
	node := scoring.NewInner(api.SuiteNode, suite.Name)
	log := e.Logger.With("suite", suite.Name)

	template, err := e.Arena.Allocate(suite.Name)
	if err != nil {
		node.Add(erroredLeaves(api.CaseNode, suite.Cases, errorDiagnostic("workdir", err))...)
		return node, nil
	}
	defer template.Close()

	if err := writeFixtures(template, g.Files); err != nil {
		node.Add(erroredLeaves(api.CaseNode, suite.Cases, errorDiagnostic("workdir", err))...)
		return node, nil
	}

	var setupFailure *api.Diagnostic
	err = e.Pool.Do(ctx, func(ctx context.Context) {
		setupFailure = e.runCommands(ctx, scope, g.InheritEnv, "setup", g.Setup, template.Path())
	})
	if err != nil {
		return nil, err
	}

	if setupFailure != nil {
		log.Warn("setup failed", "error", setupFailure.Message)
		if g.AbortOnSetupFailure {
			node.Add(erroredLeaves(api.CaseNode, suite.Cases, *setupFailure)...)
			for _, leaf := range node.Children {
				e.finishLeaf(scope, leaf)
			}
		} else {
			node.Diagnostics = append(node.Diagnostics, *setupFailure)
		}
	}

	if setupFailure == nil || !g.AbortOnSetupFailure {
		cases := make([]*scoring.Node, len(suite.Cases))
		eg, egCtx := errgroup.WithContext(ctx)
		for i := range suite.Cases {
			eg.Go(func() error {
				var err error
				cases[i], err = e.runCase(egCtx, scope, g.InheritEnv, template, &suite.Cases[i])
				if err == nil {
					e.finishLeaf(scope, cases[i])
				}
				return err
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
		node.Add(cases...)
	}

	// teardown runs even when the cases were aborted
	var teardownFailure *api.Diagnostic
	err = e.Pool.Do(ctx, func(ctx context.Context) {
		teardownFailure = e.runCommands(ctx, scope, g.InheritEnv, "teardown", g.Teardown, template.Path())
	})
	if err != nil {
		return nil, err
	}
	if teardownFailure != nil {
		log.Warn("teardown failed", "error", teardownFailure.Message)
		node.Diagnostics = append(node.Diagnostics, *teardownFailure)
	}
	return node, nil
}

// runCommands runs cmds in order in dir and stops at the first failure.
func (e *Env) runCommands(ctx context.Context, scope Scope, inherit bool, predicate string, cmds []spec.Command, dir string) *api.Diagnostic {
	for i, cmd := range cmds {
		inv, err := e.invocation(scope, cmd, nil, invocationOpts{dir: dir, inherit: inherit})
		if err != nil {
			d := errorDiagnostic(predicate, fmt.Errorf("%s step %d: %w", predicate, i+1, err))
			return &d
		}
		out := e.Runner.Run(ctx, inv)
		if failure := outcomeFailure(out); failure != "" {
			return &api.Diagnostic{
				Predicate: predicate,
				Kind:      assert.KindExecution,
				Actual:    string(out.Stderr),
				Message:   fmt.Sprintf("%s step %d (%s) %s", predicate, i+1, cmd.Program, failure),
			}
		}
	}
	return nil
}

type vectorResult struct {
	assertion assert.AssertionResult
	run       api.RunData
	errored   *api.Diagnostic
}

func (e *Env) runCase(ctx context.Context, scope Scope, inherit bool, template *workdir.Dir, c *spec.TestCase) (*scoring.Node, error) {
	vectors := c.ArgVectors()
	jobs := make([]func(context.Context) vectorResult, len(vectors))
	for i, args := range vectors {
		jobs[i] = func(ctx context.Context) vectorResult {
			return e.runVector(ctx, scope, inherit, template, c, args)
		}
	}
	results, err := pool.Run(ctx, e.Pool, jobs)
	if err != nil {
		return nil, err
	}

	leaf := scoring.NewLeaf(api.CaseNode, c.Name, c.Weight, api.Passed)
	assertions := make([]assert.AssertionResult, 0, len(results))
	for _, r := range results {
		if r.errored != nil {
			leaf.Status = api.Errored
			leaf.Diagnostics = append(leaf.Diagnostics, *r.errored)
			continue
		}
		leaf.Runs = append(leaf.Runs, r.run)
		assertions = append(assertions, r.assertion)
	}
	if leaf.Status == api.Errored {
		return leaf, nil
	}

	combined := assert.Combine(c.Match, assertions)
	leaf.Status = statusOf(combined.Passed)
	leaf.Diagnostics = combined.Diagnostics
	return leaf, nil
}

func (e *Env) runVector(ctx context.Context, scope Scope, inherit bool, template *workdir.Dir, c *spec.TestCase, args []string) vectorResult {
	dir, err := e.Arena.Allocate(c.Name)
	if err != nil {
		d := errorDiagnostic("workdir", err)
		return vectorResult{errored: &d}
	}
	defer dir.Close()

	if err := dir.CopyFrom(template.Path()); err != nil {
		d := errorDiagnostic("workdir", fmt.Errorf("failed to copy prepared files: %w", err))
		return vectorResult{errored: &d}
	}

	inv, err := e.invocation(scope, spec.Command{Program: c.Program}, args, invocationOpts{
		dir:     dir.Path(),
		stdin:   c.Stdin,
		env:     c.Env,
		timeout: c.Timeout,
		inherit: inherit,
	})
	if err != nil {
		d := errorDiagnostic("launch", err)
		return vectorResult{errored: &d}
	}

	out := e.Runner.Run(ctx, inv)
	return vectorResult{
		assertion: assert.Evaluate(out, c.Expect, dir.Path()),
		run:       runData(args, c.Stdin, out),
	}
}
