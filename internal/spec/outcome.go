package spec

import "time"

// OutcomeTag tells how an invocation ended.
type OutcomeTag string

const (
	Completed    OutcomeTag = "completed"
	TimedOut     OutcomeTag = "timed_out"
	LaunchFailed OutcomeTag = "launch_failed"
)

// Invocation is a fully resolved process launch request.
type Invocation struct {
	Path    string
	Args    []string
	Env     []string
	Dir     string
	Stdin   []byte
	Timeout time.Duration
}

// Outcome is what the runner observed for one invocation.
type Outcome struct {
	Tag      OutcomeTag
	ExitCode int
	// Signal is non-zero when the process was terminated by a signal.
	Signal          int
	Stdout          []byte
	Stderr          []byte
	StdoutTruncated bool
	StderrTruncated bool
	Duration        time.Duration
	PeakMemoryKiB   int64
	LaunchError     string
}

// Succeeded is true for a completed run that exited with status zero.
func (o *Outcome) Succeeded() bool {
	return o.Tag == Completed && o.Signal == 0 && o.ExitCode == 0
}
