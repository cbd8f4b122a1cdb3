// Package assert evaluates a case's expectations against an observed
// outcome. Every evaluated predicate produces a diagnostic, passing or not.
package assert

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/spec"
)

// Predicate kinds.
const (
	KindExact     = "exact"
	KindRegex     = "regex"
	KindRange     = "range"
	KindContent   = "content"
	KindExecution = "execution"
)

type AssertionResult struct {
	Passed      bool
	Diagnostics []api.Diagnostic
}

// Evaluate checks o against e; file predicates are resolved relative to dir.
func Evaluate(o spec.Outcome, e spec.Expect, dir string) AssertionResult {
	res := AssertionResult{Passed: true}
	add := func(d api.Diagnostic) {
		res.Diagnostics = append(res.Diagnostics, d)
		if !d.Passed {
			res.Passed = false
		}
	}

	switch o.Tag {
	case spec.LaunchFailed:
		add(api.Diagnostic{
			Predicate: "launch",
			Kind:      KindExecution,
			Message:   o.LaunchError,
		})
	case spec.TimedOut:
		add(api.Diagnostic{
			Predicate: "timeout",
			Kind:      KindExecution,
			Message:   o.LaunchError,
		})
	}

	if e.Stdout != nil {
		add(evalText("stdout", e.Stdout, o.Stdout))
	}
	if e.Stderr != nil {
		add(evalText("stderr", e.Stderr, o.Stderr))
	}
	if e.Status != nil {
		add(evalStatus(e.Status, o))
	}
	for _, f := range e.Files {
		add(evalFile(f, dir))
	}
	return res
}

func evalText(predicate string, t *spec.Text, actual []byte) api.Diagnostic {
	if t.Trim {
		actual = bytes.TrimSpace(actual)
	}
	if t.Exact != nil {
		expected := []byte(*t.Exact)
		if t.Trim {
			expected = bytes.TrimSpace(expected)
		}
		d := api.Diagnostic{
			Predicate: predicate,
			Kind:      KindExact,
			Expected:  string(expected),
			Actual:    string(actual),
			Passed:    bytes.Equal(expected, actual),
		}
		if !d.Passed {
			d.Message = fmt.Sprintf("%s differs from the expected text", predicate)
		}
		return d
	}

	d := api.Diagnostic{
		Predicate: predicate,
		Kind:      KindRegex,
		Expected:  t.Regex,
		Actual:    string(actual),
	}
	re, err := regexp.Compile(t.Regex)
	if err != nil {
		d.Message = fmt.Sprintf("invalid pattern: %v", err)
		return d
	}
	d.Passed = re.Match(actual)
	if !d.Passed {
		d.Message = fmt.Sprintf("%s does not match /%s/", predicate, t.Regex)
	}
	return d
}

func evalStatus(s *spec.Status, o spec.Outcome) api.Diagnostic {
	d := api.Diagnostic{Predicate: "status"}
	if s.Exact != nil {
		d.Kind = KindExact
		d.Expected = strconv.Itoa(*s.Exact)
	} else {
		d.Kind = KindRange
		d.Expected = rangeString(s.Min, s.Max)
	}

	if o.Tag != spec.Completed || o.Signal != 0 {
		d.Actual = "none"
		if o.Signal != 0 {
			d.Message = fmt.Sprintf("terminated by signal %d", o.Signal)
		} else {
			d.Message = "no exit status"
		}
		return d
	}

	code := o.ExitCode
	d.Actual = strconv.Itoa(code)
	switch {
	case s.Exact != nil:
		d.Passed = code == *s.Exact
	default:
		d.Passed = (s.Min == nil || code >= *s.Min) && (s.Max == nil || code <= *s.Max)
	}
	if !d.Passed {
		d.Message = fmt.Sprintf("exit status %d, expected %s", code, d.Expected)
	}
	return d
}

func rangeString(min, max *int) string {
	lo, hi := "-inf", "+inf"
	if min != nil {
		lo = strconv.Itoa(*min)
	}
	if max != nil {
		hi = strconv.Itoa(*max)
	}
	return fmt.Sprintf("[%s, %s]", lo, hi)
}

func evalFile(f spec.FileExpect, dir string) api.Diagnostic {
	d := api.Diagnostic{
		Predicate: "file:" + f.Path,
		Kind:      KindContent,
		Expected:  f.Content,
	}
	content, err := os.ReadFile(filepath.Join(dir, filepath.Clean("/"+f.Path)))
	if err != nil {
		if os.IsNotExist(err) {
			d.Message = fmt.Sprintf("%s was not created", f.Path)
		} else {
			d.Message = fmt.Sprintf("failed to read %s: %v", f.Path, err)
		}
		return d
	}
	d.Actual = string(content)
	d.Passed = d.Actual == f.Content
	if !d.Passed {
		d.Message = fmt.Sprintf("%s content differs", f.Path)
	}
	return d
}

// Combine folds the results of a case's argument vectors. All diagnostics are
// kept so a failing ordering can be told apart.
func Combine(mode spec.MatchMode, results []AssertionResult) AssertionResult {
	if len(results) == 0 {
		return AssertionResult{Passed: true}
	}
	var out AssertionResult
	out.Passed = mode != spec.AnyOf
	for _, r := range results {
		out.Diagnostics = append(out.Diagnostics, r.Diagnostics...)
		if mode == spec.AnyOf {
			out.Passed = out.Passed || r.Passed
		} else {
			out.Passed = out.Passed && r.Passed
		}
	}
	return out
}
