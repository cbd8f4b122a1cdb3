// Package engine grades an assessment: it checks the program set, fans the
// sections and groups out to the executors and seals the result tree.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal"
	"github.com/programme-lv/grader/internal/executor"
	"github.com/programme-lv/grader/internal/launch"
	"github.com/programme-lv/grader/internal/pool"
	"github.com/programme-lv/grader/internal/runner"
	"github.com/programme-lv/grader/internal/scoring"
	"github.com/programme-lv/grader/internal/spec"
	"github.com/programme-lv/grader/internal/workdir"
)

type Options struct {
	// Workers bounds concurrently running processes, NumCPU by default.
	Workers int
	// WorkRoot holds the per-job directories, a temporary one by default.
	WorkRoot   string
	MaxCapture int
	Gatherer   internal.ResultGatherer
	Logger     *slog.Logger
}

type Engine struct {
	launcher launch.Launcher
	opts     Options
	logger   *slog.Logger
}

func New(launcher launch.Launcher, opts Options) *Engine {
	if opts.Gatherer == nil {
		opts.Gatherer = internal.NoopGatherer{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		launcher: launcher,
		opts:     opts,
		logger:   opts.Logger.With("component", "engine"),
	}
}

// Grade runs every section of a and returns the report. An error means the
// run failed as a whole: a declared program is missing, the scores cannot
// be aggregated, or ctx was cancelled.
func (e *Engine) Grade(ctx context.Context, a *spec.Assessment, programs spec.ProgramSet) (*api.Report, error) {
	runUuid := uuid.NewString()
	gath := e.opts.Gatherer
	log := e.logger.With("run", runUuid)
	// every run_finish, failed or not, follows a run_start with the same uuid
	gath.StartRun(runUuid, a.Title)

	if err := programs.Check(a.Programs); err != nil {
		gath.FinishRun(nil, err)
		return nil, err
	}

	arena, err := workdir.New(e.opts.WorkRoot)
	if err != nil {
		gath.FinishRun(nil, err)
		return nil, err
	}
	defer func() {
		if err := arena.Close(); err != nil {
			log.Warn("failed to remove work root", "root", arena.Root(), "error", err)
		}
	}()

	workers := pool.New(e.opts.Workers)
	defer workers.Close()

	env := &executor.Env{
		Runner:   runner.New(e.launcher, e.opts.MaxCapture, e.opts.Logger),
		Arena:    arena,
		Programs: programs,
		Pool:     workers,
		Gatherer: gath,
		Logger:   log,
	}

	started := time.Now()
	log.Info("grading started", "title", a.Title, "sections", len(a.Sections), "workers", workers.Workers())

	root, err := e.run(ctx, env, a)
	if err != nil {
		log.Warn("grading stopped", "error", err)
		gath.FinishRun(nil, err)
		return nil, err
	}

	mode := a.Mode
	if mode == "" {
		mode = spec.Weighted
	}
	sealed, err := scoring.Seal(root, mode)
	if err != nil {
		gath.FinishRun(nil, err)
		return nil, err
	}

	report := api.NewReport(runUuid, a.Title, a.Author, sealed, started, time.Now())
	log.Info("grading finished",
		"status", report.Status,
		"score", sealed.Score,
		"earned", sealed.Earned,
		"possible", sealed.Possible,
		"took", time.Since(started).Round(time.Millisecond))
	gath.FinishRun(report, nil)
	return report, nil
}

func (e *Engine) run(ctx context.Context, env *executor.Env, a *spec.Assessment) (*scoring.Node, error) {
	root := scoring.NewInner(api.AssessmentNode, a.Title)
	sections := make([]*scoring.Node, len(a.Sections))

	eg, ctx := errgroup.WithContext(ctx)
	for i := range a.Sections {
		eg.Go(func() error {
			var err error
			sections[i], err = e.runSection(ctx, env, a, &a.Sections[i])
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	root.Add(sections...)
	return root, nil
}

func (e *Engine) runSection(ctx context.Context, env *executor.Env, a *spec.Assessment, s *spec.Section) (*scoring.Node, error) {
	node := scoring.NewInner(api.SectionNode, s.Name)
	node.Weight = s.Weight
	node.Mode = s.Mode
	node.IsPublic = s.IsPublic

	scope := executor.Scope{Timeout: a.DefaultTimeout}
	if a.Env != nil {
		scope.Env = []map[string]string{a.Env}
	}
	scope = scope.Child(s.Name, s.Env, s.Timeout)

	groups := make([]*scoring.Node, len(s.Groups))
	eg, ctx := errgroup.WithContext(ctx)
	for i := range s.Groups {
		eg.Go(func() error {
			g, err := env.Run(ctx, scope, &s.Groups[i])
			if err != nil {
				return fmt.Errorf("section %s: group %s: %w", s.Name, s.Groups[i].Name(), err)
			}
			groups[i] = g
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	node.Add(groups...)
	return node, nil
}
