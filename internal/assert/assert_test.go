package assert_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/programme-lv/grader/internal/assert"
	"github.com/programme-lv/grader/internal/spec"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func completed(stdout string, code int) spec.Outcome {
	return spec.Outcome{Tag: spec.Completed, Stdout: []byte(stdout), ExitCode: code}
}

func TestEvaluateText(t *testing.T) {
	tests := []struct {
		name   string
		text   spec.Text
		stdout string
		passed bool
	}{
		{"exact match", spec.Text{Exact: str("hello\n")}, "hello\n", true},
		{"exact is byte for byte", spec.Text{Exact: str("hello")}, "hello\n", false},
		{"trim both sides", spec.Text{Exact: str(" hello\n"), Trim: true}, "hello  \n\n", true},
		{"regex unanchored", spec.Text{Regex: `\d+ items`}, "found 12 items today", true},
		{"regex anchored by author", spec.Text{Regex: `^\d+$`}, "found 12", false},
		{"invalid regex fails", spec.Text{Regex: `(`}, "(", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := tt.text
			res := assert.Evaluate(completed(tt.stdout, 0), spec.Expect{Stdout: &text}, "")
			require.Equal(t, tt.passed, res.Passed)
			require.Len(t, res.Diagnostics, 1)
			require.Equal(t, "stdout", res.Diagnostics[0].Predicate)
			require.Equal(t, tt.passed, res.Diagnostics[0].Passed)
		})
	}
}

func TestEvaluateStatus(t *testing.T) {
	tests := []struct {
		name   string
		status *spec.Status
		out    spec.Outcome
		passed bool
	}{
		{"exact", spec.ExitCode(0), completed("", 0), true},
		{"exact mismatch", spec.ExitCode(0), completed("", 1), false},
		{"range inclusive low", spec.Between(1, 3), completed("", 1), true},
		{"range inclusive high", spec.Between(1, 3), completed("", 3), true},
		{"range outside", spec.Between(1, 3), completed("", 4), false},
		{"signal has no status", spec.ExitCode(-1), spec.Outcome{Tag: spec.Completed, ExitCode: -1, Signal: 9}, false},
		{"timeout has no status", spec.ExitCode(0), spec.Outcome{Tag: spec.TimedOut, Signal: 9}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := assert.Evaluate(tt.out, spec.Expect{Status: tt.status}, "")
			require.Equal(t, tt.passed, res.Passed)
		})
	}
}

func TestEvaluateTimeoutStillEvaluatesPredicates(t *testing.T) {
	out := spec.Outcome{Tag: spec.TimedOut, Stdout: []byte("partial"), Signal: 9, LaunchError: "exceeded timeout of 1s"}
	res := assert.Evaluate(out, spec.Expect{Stdout: &spec.Text{Exact: str("partial")}}, "")

	require.False(t, res.Passed)
	require.Len(t, res.Diagnostics, 2)
	require.Equal(t, "timeout", res.Diagnostics[0].Predicate)
	require.Equal(t, assert.KindExecution, res.Diagnostics[0].Kind)
	require.True(t, res.Diagnostics[1].Passed)
}

func TestEvaluateLaunchFailure(t *testing.T) {
	out := spec.Outcome{Tag: spec.LaunchFailed, LaunchError: "no such file"}
	res := assert.Evaluate(out, spec.Expect{Status: spec.ExitCode(0)}, "")

	require.False(t, res.Passed)
	require.Len(t, res.Diagnostics, 2)
	require.Equal(t, "launch", res.Diagnostics[0].Predicate)
	require.Equal(t, "no such file", res.Diagnostics[0].Message)
	require.False(t, res.Diagnostics[1].Passed)
}

func TestEvaluateFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out.txt"), []byte("42\n"), 0644))

	expect := spec.Expect{Files: []spec.FileExpect{
		{Path: "out.txt", Content: "42\n"},
		{Path: "missing.txt", Content: ""},
	}}
	res := assert.Evaluate(completed("", 0), expect, dir)

	require.False(t, res.Passed)
	require.Len(t, res.Diagnostics, 2)
	require.Equal(t, "file:out.txt", res.Diagnostics[0].Predicate)
	require.True(t, res.Diagnostics[0].Passed)
	require.False(t, res.Diagnostics[1].Passed)
	require.Contains(t, res.Diagnostics[1].Message, "was not created")
}

func TestEvaluateEveryPredicateReported(t *testing.T) {
	out := spec.Outcome{Tag: spec.Completed, Stdout: []byte("ok"), Stderr: []byte("warn"), ExitCode: 0}
	expect := spec.Expect{
		Stdout: &spec.Text{Exact: str("ok")},
		Stderr: &spec.Text{Regex: "error"},
		Status: spec.ExitCode(0),
	}
	res := assert.Evaluate(out, expect, "")

	require.False(t, res.Passed)
	require.Len(t, res.Diagnostics, 3)
	require.True(t, res.Diagnostics[0].Passed)
	require.False(t, res.Diagnostics[1].Passed)
	require.True(t, res.Diagnostics[2].Passed)
}

func TestCombine(t *testing.T) {
	pass := assert.AssertionResult{Passed: true}
	fail := assert.AssertionResult{Passed: false}

	require.True(t, assert.Combine(spec.AllOf, []assert.AssertionResult{pass, pass}).Passed)
	require.False(t, assert.Combine(spec.AllOf, []assert.AssertionResult{pass, fail}).Passed)
	require.True(t, assert.Combine(spec.AnyOf, []assert.AssertionResult{fail, pass}).Passed)
	require.False(t, assert.Combine(spec.AnyOf, []assert.AssertionResult{fail, fail}).Passed)
	// empty match mode behaves as all_of
	require.False(t, assert.Combine("", []assert.AssertionResult{pass, fail}).Passed)
}
