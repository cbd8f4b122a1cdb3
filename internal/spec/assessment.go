package spec

import "time"

// GradingMode decides how leaf results fold into a node score.
type GradingMode string

const (
	// Absolute: a node scores 1 only if every leaf below it passed.
	Absolute GradingMode = "absolute"
	// Weighted: a node scores earned/possible weight.
	Weighted GradingMode = "weighted"
)

// Assessment is the root of one grading run. It is built once by the spec
// loader and only read afterwards.
type Assessment struct {
	Title          string
	Author         string
	Mode           GradingMode
	Env            map[string]string
	DefaultTimeout time.Duration
	// Programs lists the program references the sections may use.
	Programs []string
	Sections []Section
}

type Section struct {
	Name     string
	Weight   float64
	IsPublic bool
	// Mode overrides the assessment mode for this section's subtree.
	Mode    *GradingMode
	Env     map[string]string
	Timeout time.Duration
	Groups  []TestGroup
}

// EffectiveMode returns the mode the section's subtree is graded with.
func (s *Section) EffectiveMode(parent GradingMode) GradingMode {
	if s.Mode != nil {
		return *s.Mode
	}
	return parent
}

type GroupKind string

const (
	UnitKind        GroupKind = "unit"
	IntegrationKind GroupKind = "integration"
	PerformanceKind GroupKind = "performance"
)

// TestGroup is a tagged union, exactly the field matching Kind is set.
type TestGroup struct {
	Kind        GroupKind
	Unit        *UnitGroup
	Integration *IntegrationGroup
	Performance *PerformanceGroup
}

// Name returns the name of whichever variant is set.
func (g *TestGroup) Name() string {
	switch g.Kind {
	case UnitKind:
		return g.Unit.Name
	case IntegrationKind:
		return g.Integration.Name
	case PerformanceKind:
		return g.Performance.Name
	}
	return ""
}

// Fixture is a file placed into a working directory before anything runs.
type Fixture struct {
	Path    string
	Content []byte
}

// GroupBase holds what every group variant shares.
type GroupBase struct {
	Name string
	Env  map[string]string
	// InheritEnv passes the grader's own environment to the programs.
	InheritEnv bool
	Files      []Fixture
	Timeout    time.Duration
}

type UnitGroup struct {
	GroupBase
	Setup    []Command
	Teardown []Command
	// AbortOnSetupFailure marks remaining cases Errored when a setup step fails.
	AbortOnSetupFailure bool
	Suites              []UnitSuite
}

// UnitSuite is one program under test inside a unit group.
type UnitSuite struct {
	Name    string
	Program string
	Cases   []TestCase
}

type IntegrationGroup struct {
	GroupBase
	StopIfFail bool
	Steps      []Step
}

// Step is either a raw shell command or a structured case.
type Step struct {
	Name   string
	Weight float64
	Shell  string
	Expect Expect
	Case   *TestCase
}

type PerformanceGroup struct {
	GroupBase
	Benchmarks []Benchmark
}

type Benchmark struct {
	Name         string
	Weight       float64
	Case         TestCase
	MaxTime      time.Duration
	MaxMemoryKiB int64
	Stress       *StressTest
	Profiling    *Profiling
}

type StressTest struct {
	Iterations         int
	StabilityThreshold float64
	// Generator's stdout becomes the target's stdin for one iteration.
	Generator Command
}

type LeakPolicy string

const (
	FailOnLeak LeakPolicy = "fail_on_leak"
	WarnOnLeak LeakPolicy = "warn"
)

type Profiling struct {
	Tool         Command
	// LeakExitCode is the tool's exit status for a leak. When nil any
	// non-zero exit counts as one.
	LeakExitCode *int
	MemoryLeaks  LeakPolicy
}

// Command is an external command: a declared program reference or an
// executable found on PATH, plus its arguments.
type Command struct {
	Program string
	Args    []string
}
