package specfile

import "github.com/programme-lv/grader/api"

// specRoot is the TOML document as written by assessment authors.
type specRoot struct {
	Title     string            `toml:"title"`
	Author    string            `toml:"author"`
	TimeoutMs int64             `toml:"timeout_ms"`
	Programs  []string          `toml:"programs"`
	Grading   specGrading       `toml:"grading"`
	Env       map[string]string `toml:"env"`
	Sections  []specSection     `toml:"sections"`
}

type specGrading struct {
	Mode string `toml:"mode"`
}

type specSection struct {
	Name      string            `toml:"name"`
	Weight    *float64          `toml:"weight"`
	IsPublic  bool              `toml:"is_public"`
	Mode      string            `toml:"mode"`
	Env       map[string]string `toml:"env"`
	TimeoutMs int64             `toml:"timeout_ms"`

	UnitTests        []specUnitGroup        `toml:"unit_tests"`
	IntegrationTests []specIntegrationGroup `toml:"integration_tests"`
	PerformanceTests []specPerformanceGroup `toml:"performance_tests"`
}

// specGroupBase is shared by every group table.
type specGroupBase struct {
	Name       string            `toml:"name"`
	Env        map[string]string `toml:"env"`
	InheritEnv *bool             `toml:"inherit_env"`
	Files      []api.FileRef     `toml:"files"`
	TimeoutMs  int64             `toml:"timeout_ms"`
}

type specUnitGroup struct {
	specGroupBase
	Setup               []string        `toml:"setup"`
	Teardown            []string        `toml:"teardown"`
	AbortOnSetupFailure *bool           `toml:"abort_on_setup_failure"`
	Tests               []specUnitTests `toml:"tests"`
}

// specUnitTests lists the cases of one program, as a table, detailed
// entries, or both.
type specUnitTests struct {
	Name     string         `toml:"name"`
	Program  string         `toml:"program"`
	Table    *specTable     `toml:"table"`
	Detailed []specTestCase `toml:"detailed"`
}

type specTable struct {
	Header []string `toml:"header"`
	Rows   [][]any  `toml:"rows"`
}

type specTestCase struct {
	Name      string            `toml:"name"`
	Program   string            `toml:"program"`
	Args      []string          `toml:"args"`
	ArgSets   [][]string        `toml:"arg_sets"`
	Permute   bool              `toml:"permute"`
	Match     string            `toml:"match"`
	Stdin     string            `toml:"stdin"`
	Env       map[string]string `toml:"env"`
	Weight    *float64          `toml:"weight"`
	TimeoutMs int64             `toml:"timeout_ms"`
	Expect    specExpect        `toml:"expect"`
}

type specExpect struct {
	Stdout      *string          `toml:"stdout"`
	StdoutRegex string           `toml:"stdout_regex"`
	Stderr      *string          `toml:"stderr"`
	StderrRegex string           `toml:"stderr_regex"`
	Trim        bool             `toml:"trim"`
	Status      *int             `toml:"status"`
	StatusRange []int            `toml:"status_range"`
	Files       []specFileExpect `toml:"files"`
}

type specFileExpect struct {
	Path    string `toml:"path"`
	Content string `toml:"content"`
}

type specIntegrationGroup struct {
	specGroupBase
	StopIfFail *bool      `toml:"stop_if_fail"`
	Steps      []specStep `toml:"steps"`
}

// specStep is a shell command, or a program invocation when program is set.
type specStep struct {
	specTestCase
	Shell string `toml:"shell"`
}

type specPerformanceGroup struct {
	specGroupBase
	Benchmarks []specBenchmark `toml:"benchmarks"`
}

type specBenchmark struct {
	specTestCase
	MaxTimeMs    int64          `toml:"max_time_ms"`
	MaxMemoryKiB int64          `toml:"max_memory_kib"`
	Stress       *specStress    `toml:"stress"`
	Profiling    *specProfiling `toml:"profiling"`
}

type specStress struct {
	Iterations         int     `toml:"iterations"`
	StabilityThreshold float64 `toml:"stability_threshold"`
	Generator          string  `toml:"generator"`
}

type specProfiling struct {
	Tool         string `toml:"tool"`
	LeakExitCode *int   `toml:"leak_exit_code"`
	MemoryLeaks  string `toml:"memory_leaks"`
}
