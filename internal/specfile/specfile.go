// Package specfile reads assessment specifications written in TOML and
// turns them into the read-only spec model.
package specfile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/kballard/go-shellquote"
	"github.com/pelletier/go-toml/v2"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/spec"
)

// ErrInvalid wraps every problem found while loading a specification.
var ErrInvalid = errors.New("invalid specification")

// DefaultProgram is assumed when the document declares no programs.
const DefaultProgram = "program1"

// Fetcher resolves remote fixture files by their sha256.
type Fetcher interface {
	Schedule(key string, url string) error
	Prefetch(ctx context.Context, parallel int) error
	Await(ctx context.Context, key string) ([]byte, error)
}

// Load reads and converts the file at path. Remote fixtures are fetched
// through fetcher, which may be nil when every file is inline.
func Load(ctx context.Context, path string, fetcher Fetcher) (*spec.Assessment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read specification file: %w", err)
	}
	return Parse(ctx, data, fetcher)
}

func Parse(ctx context.Context, data []byte, fetcher Fetcher) (*spec.Assessment, error) {
	var root specRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: failed to parse TOML: %w", ErrInvalid, err)
	}

	c := &converter{
		ctx:     ctx,
		fetcher: fetcher,
	}
	a := c.assessment(&root)
	if err := c.fetchFiles(); err != nil {
		return nil, err
	}
	if len(c.problems) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(c.problems...))
	}
	return a, nil
}

type pendingFile struct {
	key    string
	target *spec.Fixture
}

// converter accumulates problems so one pass reports all of them.
type converter struct {
	ctx      context.Context
	fetcher  Fetcher
	problems []error
	declared mapset.Set[string]
	pending  []pendingFile
}

func (c *converter) fail(where string, format string, args ...any) {
	c.problems = append(c.problems, fmt.Errorf("%s: %s", where, fmt.Sprintf(format, args...)))
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (c *converter) mode(where string, s string) *spec.GradingMode {
	switch spec.GradingMode(s) {
	case "":
		return nil
	case spec.Absolute, spec.Weighted:
		m := spec.GradingMode(s)
		return &m
	}
	c.fail(where, "unknown grading mode %q", s)
	return nil
}

func (c *converter) weight(where string, w *float64) float64 {
	if w == nil {
		return 1
	}
	if *w < 0 || math.IsNaN(*w) || math.IsInf(*w, 0) {
		c.fail(where, "weight must be a non-negative number, got %v", *w)
	}
	return *w
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func (c *converter) assessment(root *specRoot) *spec.Assessment {
	a := &spec.Assessment{
		Title:          root.Title,
		Author:         root.Author,
		Mode:           spec.Weighted,
		Env:            root.Env,
		DefaultTimeout: millis(root.TimeoutMs),
		Programs:       root.Programs,
	}
	if len(a.Programs) == 0 {
		a.Programs = []string{DefaultProgram}
	}
	c.declared = mapset.NewThreadUnsafeSet[string]()
	for _, p := range a.Programs {
		if !c.declared.Add(p) {
			c.fail("programs", "program %q declared twice", p)
		}
	}
	if m := c.mode("grading", root.Grading.Mode); m != nil {
		a.Mode = *m
	}
	if len(root.Sections) == 0 {
		c.fail("sections", "at least one section is required")
	}

	names := mapset.NewThreadUnsafeSet[string]()
	for i := range root.Sections {
		s := c.section(i, &root.Sections[i])
		if !names.Add(s.Name) {
			c.fail(fmt.Sprintf("sections[%d]", i), "section name %q is not unique", s.Name)
		}
		a.Sections = append(a.Sections, s)
	}
	return a
}

func (c *converter) section(i int, ss *specSection) spec.Section {
	where := fmt.Sprintf("sections[%d]", i)
	s := spec.Section{
		Name:     ss.Name,
		Weight:   c.weight(where, ss.Weight),
		IsPublic: ss.IsPublic,
		Mode:     c.mode(where, ss.Mode),
		Env:      ss.Env,
		Timeout:  millis(ss.TimeoutMs),
	}
	if s.Name == "" {
		s.Name = fmt.Sprintf("Section %d", i+1)
	}

	names := mapset.NewThreadUnsafeSet[string]()
	addGroup := func(g spec.TestGroup, where string) {
		if !names.Add(g.Name()) {
			c.fail(where, "group name %q is not unique in section %q", g.Name(), s.Name)
		}
		s.Groups = append(s.Groups, g)
	}
	for j := range ss.UnitTests {
		w := fmt.Sprintf("%s.unit_tests[%d]", where, j)
		addGroup(spec.TestGroup{Kind: spec.UnitKind, Unit: c.unitGroup(w, j, &ss.UnitTests[j])}, w)
	}
	for j := range ss.IntegrationTests {
		w := fmt.Sprintf("%s.integration_tests[%d]", where, j)
		addGroup(spec.TestGroup{Kind: spec.IntegrationKind, Integration: c.integrationGroup(w, j, &ss.IntegrationTests[j])}, w)
	}
	for j := range ss.PerformanceTests {
		w := fmt.Sprintf("%s.performance_tests[%d]", where, j)
		addGroup(spec.TestGroup{Kind: spec.PerformanceKind, Performance: c.performanceGroup(w, j, &ss.PerformanceTests[j])}, w)
	}
	if len(s.Groups) == 0 {
		c.fail(where, "section %q has no tests", s.Name)
	}
	return s
}

func (c *converter) groupBase(where string, kind string, j int, sg *specGroupBase) spec.GroupBase {
	g := spec.GroupBase{
		Name:       sg.Name,
		Env:        sg.Env,
		InheritEnv: boolOr(sg.InheritEnv, true),
		Timeout:    millis(sg.TimeoutMs),
	}
	if g.Name == "" {
		g.Name = fmt.Sprintf("%s %d", kind, j+1)
	}
	paths := mapset.NewThreadUnsafeSet[string]()
	g.Files = make([]spec.Fixture, len(sg.Files))
	for k := range sg.Files {
		f := &sg.Files[k]
		fw := fmt.Sprintf("%s.files[%d]", where, k)
		if f.Path == "" {
			c.fail(fw, "file path is required")
		} else if !paths.Add(f.Path) {
			c.fail(fw, "file %q listed twice", f.Path)
		}
		g.Files[k].Path = f.Path
		c.fixture(fw, f, &g.Files[k])
	}
	return g
}

func (c *converter) fixture(where string, f *api.FileRef, target *spec.Fixture) {
	switch {
	case f.Content != nil:
		target.Content = []byte(*f.Content)
	case f.IsRemote():
		if c.fetcher == nil {
			c.fail(where, "remote file %s needs a file store", f.Path)
			return
		}
		url := ""
		if f.Url != nil {
			url = *f.Url
		}
		if err := c.fetcher.Schedule(*f.Sha256, url); err != nil {
			c.fail(where, "%v", err)
			return
		}
		c.pending = append(c.pending, pendingFile{key: *f.Sha256, target: target})
	default:
		c.fail(where, "file %s needs either content or sha256 and url", f.Path)
	}
}

// fetchFiles downloads every remote fixture once the whole document has
// been walked, so downloads overlap.
func (c *converter) fetchFiles() error {
	if len(c.pending) == 0 || len(c.problems) > 0 {
		return nil
	}
	if err := c.fetcher.Prefetch(c.ctx, 4); err != nil {
		return fmt.Errorf("%w: %w", spec.ErrSpecMismatch, err)
	}
	for _, p := range c.pending {
		content, err := c.fetcher.Await(c.ctx, p.key)
		if err != nil {
			return fmt.Errorf("%w: %w", spec.ErrSpecMismatch, err)
		}
		p.target.Content = content
	}
	return nil
}

func (c *converter) command(where string, line string) spec.Command {
	words, err := shellquote.Split(line)
	if err != nil {
		c.fail(where, "cannot split command %q: %v", line, err)
		return spec.Command{}
	}
	if len(words) == 0 {
		c.fail(where, "empty command")
		return spec.Command{}
	}
	return spec.Command{Program: words[0], Args: words[1:]}
}

func (c *converter) commands(where string, lines []string) []spec.Command {
	var cmds []spec.Command
	for i, line := range lines {
		cmds = append(cmds, c.command(fmt.Sprintf("%s[%d]", where, i), line))
	}
	return cmds
}

// program picks the reference a case runs, falling back to the only
// declared program.
func (c *converter) program(where string, refs ...string) string {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if !c.declared.Contains(ref) {
			c.fail(where, "program %q is not declared", ref)
		}
		return ref
	}
	if c.declared.Cardinality() == 1 {
		return c.declared.ToSlice()[0]
	}
	c.fail(where, "program is required when several programs are declared")
	return ""
}

func (c *converter) unitGroup(where string, j int, sg *specUnitGroup) *spec.UnitGroup {
	g := &spec.UnitGroup{
		GroupBase:           c.groupBase(where, "Unit tests", j, &sg.specGroupBase),
		Setup:               c.commands(where+".setup", sg.Setup),
		Teardown:            c.commands(where+".teardown", sg.Teardown),
		AbortOnSetupFailure: boolOr(sg.AbortOnSetupFailure, true),
	}
	suites := mapset.NewThreadUnsafeSet[string]()
	for k := range sg.Tests {
		tw := fmt.Sprintf("%s.tests[%d]", where, k)
		st := &sg.Tests[k]
		suite := spec.UnitSuite{Name: st.Name, Program: c.program(tw, st.Program)}
		if suite.Name == "" {
			suite.Name = suite.Program
		}
		if !suites.Add(suite.Name) {
			c.fail(tw, "tests name %q is not unique, set a name", suite.Name)
		}

		if st.Table != nil {
			suite.Cases = append(suite.Cases, c.tableCases(tw+".table", suite.Program, st.Table)...)
		}
		for m := range st.Detailed {
			dw := fmt.Sprintf("%s.detailed[%d]", tw, m)
			tc := c.testCase(dw, len(suite.Cases)+1, &st.Detailed[m], true)
			tc.Program = c.program(dw, st.Detailed[m].Program, suite.Program)
			suite.Cases = append(suite.Cases, tc)
		}
		if len(suite.Cases) == 0 {
			c.fail(tw, "no test cases")
		}
		c.uniqueCaseNames(tw, suite.Cases)
		g.Suites = append(g.Suites, suite)
	}
	if len(g.Suites) == 0 {
		c.fail(where, "unit test group %q has no tests", g.Name)
	}
	return g
}

func (c *converter) uniqueCaseNames(where string, cases []spec.TestCase) {
	names := mapset.NewThreadUnsafeSet[string]()
	for _, tc := range cases {
		if !names.Add(tc.Name) {
			c.fail(where, "case name %q is not unique", tc.Name)
		}
	}
}

// testCase converts one case. requireExpect is off for benchmarks whose
// limits already judge the run.
func (c *converter) testCase(where string, n int, st *specTestCase, requireExpect bool) spec.TestCase {
	tc := spec.TestCase{
		Name:    st.Name,
		Args:    st.Args,
		ArgSets: st.ArgSets,
		Permute: st.Permute,
		Match:   spec.AllOf,
		Stdin:   []byte(st.Stdin),
		Env:     st.Env,
		Weight:  c.weight(where, st.Weight),
		Timeout: millis(st.TimeoutMs),
		Expect:  c.expect(where, &st.Expect),
	}
	if tc.Name == "" {
		tc.Name = fmt.Sprintf("Case %d", n)
	}
	switch spec.MatchMode(st.Match) {
	case "", spec.AllOf:
	case spec.AnyOf:
		tc.Match = spec.AnyOf
	default:
		c.fail(where, "unknown match mode %q", st.Match)
	}
	if tc.Permute && len(tc.Args) > spec.MaxPermutedArgs {
		c.fail(where, "cannot permute %d arguments, at most %d", len(tc.Args), spec.MaxPermutedArgs)
	}
	if tc.Permute && len(tc.ArgSets) > 0 {
		c.fail(where, "permute and arg_sets are mutually exclusive")
	}
	if requireExpect && tc.Expect.Empty() {
		c.fail(where, "at least one of stdout, stderr, status or files must be expected")
	}
	return tc
}

func (c *converter) text(where string, exact *string, pattern string, trim bool) *spec.Text {
	switch {
	case exact != nil && pattern != "":
		c.fail(where, "exact and regex expectations are mutually exclusive")
		return nil
	case exact != nil:
		return &spec.Text{Exact: exact, Trim: trim}
	case pattern != "":
		if _, err := regexp.Compile(pattern); err != nil {
			c.fail(where, "invalid pattern: %v", err)
		}
		return &spec.Text{Regex: pattern, Trim: trim}
	}
	return nil
}

func (c *converter) expect(where string, se *specExpect) spec.Expect {
	e := spec.Expect{
		Stdout: c.text(where+".stdout", se.Stdout, se.StdoutRegex, se.Trim),
		Stderr: c.text(where+".stderr", se.Stderr, se.StderrRegex, se.Trim),
	}
	switch {
	case se.Status != nil && se.StatusRange != nil:
		c.fail(where, "status and status_range are mutually exclusive")
	case se.Status != nil:
		e.Status = spec.ExitCode(*se.Status)
	case se.StatusRange != nil:
		if len(se.StatusRange) != 2 || se.StatusRange[0] > se.StatusRange[1] {
			c.fail(where, "status_range must be [min, max] with min <= max")
		} else {
			e.Status = spec.Between(se.StatusRange[0], se.StatusRange[1])
		}
	}
	for _, f := range se.Files {
		e.Files = append(e.Files, spec.FileExpect{Path: f.Path, Content: f.Content})
	}
	return e
}

func (c *converter) integrationGroup(where string, j int, sg *specIntegrationGroup) *spec.IntegrationGroup {
	g := &spec.IntegrationGroup{
		GroupBase:  c.groupBase(where, "Integration tests", j, &sg.specGroupBase),
		StopIfFail: boolOr(sg.StopIfFail, true),
	}
	names := mapset.NewThreadUnsafeSet[string]()
	for k := range sg.Steps {
		sw := fmt.Sprintf("%s.steps[%d]", where, k)
		ss := &sg.Steps[k]
		step := spec.Step{
			Name:   ss.Name,
			Weight: c.weight(sw, ss.Weight),
		}
		if step.Name == "" {
			step.Name = fmt.Sprintf("Step %d", k+1)
		}
		if !names.Add(step.Name) {
			c.fail(sw, "step name %q is not unique", step.Name)
		}

		switch {
		case ss.Shell != "" && ss.Program != "":
			c.fail(sw, "shell and program are mutually exclusive")
		case ss.Shell != "":
			step.Shell = ss.Shell
			step.Expect = c.expect(sw, &ss.Expect)
		case ss.Program != "":
			tc := c.testCase(sw, k+1, &ss.specTestCase, true)
			tc.Name = step.Name
			tc.Program = c.program(sw, ss.Program)
			step.Case = &tc
		default:
			c.fail(sw, "a step needs shell or program")
		}
		g.Steps = append(g.Steps, step)
	}
	if len(g.Steps) == 0 {
		c.fail(where, "integration group %q has no steps", g.Name)
	}
	return g
}

func (c *converter) performanceGroup(where string, j int, sg *specPerformanceGroup) *spec.PerformanceGroup {
	g := &spec.PerformanceGroup{
		GroupBase: c.groupBase(where, "Performance tests", j, &sg.specGroupBase),
	}
	names := mapset.NewThreadUnsafeSet[string]()
	for k := range sg.Benchmarks {
		bw := fmt.Sprintf("%s.benchmarks[%d]", where, k)
		sb := &sg.Benchmarks[k]
		b := spec.Benchmark{
			Name:         sb.Name,
			Weight:       c.weight(bw, sb.Weight),
			MaxTime:      millis(sb.MaxTimeMs),
			MaxMemoryKiB: sb.MaxMemoryKiB,
		}
		if b.Name == "" {
			b.Name = fmt.Sprintf("Benchmark %d", k+1)
		}
		if !names.Add(b.Name) {
			c.fail(bw, "benchmark name %q is not unique", b.Name)
		}

		bounded := sb.MaxTimeMs > 0 || sb.MaxMemoryKiB > 0 || sb.Stress != nil || sb.Profiling != nil
		tc := c.testCase(bw, k+1, &sb.specTestCase, !bounded)
		if tc.Expect.Empty() {
			tc.Expect.Status = spec.ExitCode(0)
		}
		tc.Name = b.Name
		tc.Program = c.program(bw, sb.Program)
		if tc.Permute || len(tc.ArgSets) > 0 {
			c.fail(bw, "benchmarks run a single argument vector")
		}
		b.Case = tc

		if st := sb.Stress; st != nil {
			if st.Iterations <= 0 {
				c.fail(bw+".stress", "iterations must be positive")
			}
			if st.StabilityThreshold < 0 || st.StabilityThreshold > 1 {
				c.fail(bw+".stress", "stability_threshold must be within [0, 1]")
			}
			b.Stress = &spec.StressTest{
				Iterations:         st.Iterations,
				StabilityThreshold: st.StabilityThreshold,
				Generator:          c.command(bw+".stress.generator", st.Generator),
			}
		}
		if sp := sb.Profiling; sp != nil {
			if sp.LeakExitCode != nil && *sp.LeakExitCode == 0 {
				c.fail(bw+".profiling", "leak_exit_code must be non-zero, 0 is a clean run")
			}
			policy := spec.LeakPolicy(sp.MemoryLeaks)
			switch policy {
			case "":
				policy = spec.FailOnLeak
			case spec.FailOnLeak, spec.WarnOnLeak:
			default:
				c.fail(bw+".profiling", "unknown memory_leaks policy %q", sp.MemoryLeaks)
			}
			b.Profiling = &spec.Profiling{
				Tool:         c.command(bw+".profiling.tool", sp.Tool),
				LeakExitCode: sp.LeakExitCode,
				MemoryLeaks:  policy,
			}
		}
		g.Benchmarks = append(g.Benchmarks, b)
	}
	if len(g.Benchmarks) == 0 {
		c.fail(where, "performance group %q has no benchmarks", g.Name)
	}
	return g
}
