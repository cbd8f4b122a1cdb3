package executor

import (
	"context"
	"fmt"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/assert"
	"github.com/programme-lv/grader/internal/scoring"
	"github.com/programme-lv/grader/internal/spec"
	"github.com/programme-lv/grader/internal/workdir"
)

// shellPath runs raw integration steps.
const shellPath = "/bin/sh"

// defaultShellExpect applies to shell steps that declare no expectation.
var defaultShellExpect = spec.Expect{Status: spec.ExitCode(0)}

// RunIntegration runs the steps of g strictly in order in one shared
// directory, as a single pool job.
func (e *Env) RunIntegration(ctx context.Context, scope Scope, g *spec.IntegrationGroup) (*scoring.Node, error) {
	scope = scope.Child(g.Name, g.Env, g.Timeout)
	e.Gatherer.StartGroup(scope.Path)

	node := scoring.NewInner(api.GroupNode, g.Name)
	err := e.Pool.Do(ctx, func(ctx context.Context) {
		node.Add(e.runSequence(ctx, scope, g)...)
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (e *Env) runSequence(ctx context.Context, scope Scope, g *spec.IntegrationGroup) []*scoring.Node {
	leaves := make([]*scoring.Node, 0, len(g.Steps))

	dir, err := e.Arena.Allocate(g.Name)
	if err == nil {
		defer dir.Close()
		err = writeFixtures(dir, g.Files)
	}
	if err != nil {
		d := errorDiagnostic("workdir", err)
		for _, step := range g.Steps {
			leaf := scoring.NewLeaf(api.StepNode, step.Name, step.Weight, api.Errored)
			leaf.Diagnostics = []api.Diagnostic{d}
			leaves = append(leaves, leaf)
			e.finishLeaf(scope, leaf)
		}
		return leaves
	}

	// index of the step that stopped the sequence, -1 while running
	failedAt := -1
	for i := range g.Steps {
		step := &g.Steps[i]
		var leaf *scoring.Node
		if failedAt >= 0 {
			leaf = scoring.NewLeaf(api.StepNode, step.Name, step.Weight, api.Skipped)
			leaf.Diagnostics = []api.Diagnostic{{
				Predicate: "sequence",
				Kind:      assert.KindExecution,
				Message:   fmt.Sprintf("skipped because step %d (%s) failed", failedAt+1, g.Steps[failedAt].Name),
			}}
		} else {
			leaf = e.runStep(ctx, scope, g.InheritEnv, dir, step)
			if leaf.Status != api.Passed && g.StopIfFail {
				failedAt = i
			}
		}
		leaves = append(leaves, leaf)
		e.finishLeaf(scope, leaf)
	}
	return leaves
}

func (e *Env) runStep(ctx context.Context, scope Scope, inherit bool, dir *workdir.Dir, step *spec.Step) *scoring.Node {
	leaf := scoring.NewLeaf(api.StepNode, step.Name, step.Weight, api.Passed)

	if step.Case == nil {
		expect := step.Expect
		if expect.Empty() {
			expect = defaultShellExpect
		}
		inv, err := e.invocation(scope, spec.Command{Program: shellPath}, []string{"-c", step.Shell}, invocationOpts{
			dir:     dir.Path(),
			inherit: inherit,
		})
		if err != nil {
			leaf.Status = api.Errored
			leaf.Diagnostics = []api.Diagnostic{errorDiagnostic("launch", err)}
			return leaf
		}
		out := e.Runner.Run(ctx, inv)
		res := assert.Evaluate(out, expect, dir.Path())
		leaf.Status = statusOf(res.Passed)
		leaf.Diagnostics = res.Diagnostics
		leaf.Runs = []api.RunData{runData(inv.Args, nil, out)}
		return leaf
	}

	c := step.Case
	var results []assert.AssertionResult
	for _, args := range c.ArgVectors() {
		inv, err := e.invocation(scope, spec.Command{Program: c.Program}, args, invocationOpts{
			dir:     dir.Path(),
			stdin:   c.Stdin,
			env:     c.Env,
			timeout: c.Timeout,
			inherit: inherit,
		})
		if err != nil {
			leaf.Status = api.Errored
			leaf.Diagnostics = []api.Diagnostic{errorDiagnostic("launch", err)}
			return leaf
		}
		out := e.Runner.Run(ctx, inv)
		results = append(results, assert.Evaluate(out, c.Expect, dir.Path()))
		leaf.Runs = append(leaf.Runs, runData(args, c.Stdin, out))
	}
	combined := assert.Combine(c.Match, results)
	leaf.Status = statusOf(combined.Passed)
	leaf.Diagnostics = combined.Diagnostics
	return leaf
}
