package termgath

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/programme-lv/grader/api"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	gray   = color.New(color.FgHiBlack)
	bold   = color.New(color.Bold)
)

// TerminalGatherer prints progress lines as leaves finish and a summary
// tree at the end. Quiet keeps only the summary.
type TerminalGatherer struct {
	StartedAt time.Time
	Quiet     bool

	mu  sync.Mutex
	out io.Writer
}

func New(quiet bool) *TerminalGatherer {
	return NewWithWriter(os.Stdout, quiet)
}

func NewWithWriter(w io.Writer, quiet bool) *TerminalGatherer {
	return &TerminalGatherer{StartedAt: time.Now(), Quiet: quiet, out: w}
}

func statusColor(s api.Status) *color.Color {
	switch s {
	case api.Passed:
		return green
	case api.PartiallyPassed, api.Skipped:
		return yellow
	case api.Failed, api.Errored:
		return red
	}
	return gray
}

func (t *TerminalGatherer) StartRun(runUuid string, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.StartedAt = time.Now()
	bold.Fprintf(t.out, "== Grading %s ==\n", title)
	gray.Fprintf(t.out, "run %s\n", runUuid)
}

func (t *TerminalGatherer) StartGroup(path []string) {
	if t.Quiet {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "-- %s --\n", strings.Join(path, " / "))
}

func (t *TerminalGatherer) FinishLeaf(path []string, node *api.ResultNode) {
	if t.Quiet {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	statusColor(node.Status).Fprintf(t.out, "%-16s", node.Status)
	fmt.Fprintf(t.out, " %s", strings.Join(path, " / "))
	if len(node.Runs) > 0 {
		last := node.Runs[len(node.Runs)-1]
		gray.Fprintf(t.out, "  exit=%d wall=%dms mem=%dKiB", last.ExitCode, last.WallMillis, last.MemoryKiBytes)
	}
	fmt.Fprintln(t.out)
	for _, d := range node.Diagnostics {
		if d.Passed {
			continue
		}
		fmt.Fprintf(t.out, "    %s: %s\n", d.Predicate, describe(d))
	}
}

func describe(d api.Diagnostic) string {
	if d.Message != "" && d.Expected == "" {
		return d.Message
	}
	msg := fmt.Sprintf("expected %q, got %q", shorten(d.Expected), shorten(d.Actual))
	if d.Message != "" {
		msg = d.Message + ", " + msg
	}
	return msg
}

func shorten(s string) string {
	const max = 60
	if len(s) > max {
		return s[:max] + "[...]"
	}
	return s
}

func (t *TerminalGatherer) FinishRun(report *api.Report, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dur := time.Since(t.StartedAt).Round(time.Millisecond)
	if err != nil {
		red.Fprintf(t.out, "== Grading failed: %v ==\n", err)
		return
	}

	report.Root.Walk(func(path []string, n *api.ResultNode) {
		if n.Kind == api.CaseNode || n.Kind == api.StepNode || n.Kind == api.BenchmarkNode {
			return
		}
		indent := strings.Repeat("  ", len(path))
		fmt.Fprintf(t.out, "%s%s ", indent, n.Name)
		statusColor(n.Status).Fprintf(t.out, "%s", n.Status)
		fmt.Fprintf(t.out, " %.2f/%.2f (%.1f%%)\n", n.Score*n.Possible, n.Possible, n.Score*100)
	})
	fmt.Fprintf(t.out, "== Grading finished in %s, status %s ==\n", dur, report.Status)
}
