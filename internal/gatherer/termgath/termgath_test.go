package termgath_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/gatherer/termgath"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.NoColor = true
}

func TestFinishLeafPrintsFailures(t *testing.T) {
	var buf bytes.Buffer
	g := termgath.NewWithWriter(&buf, false)

	g.FinishLeaf([]string{"basics", "echo", "c1"}, &api.ResultNode{
		Kind:   api.CaseNode,
		Status: api.Failed,
		Runs:   []api.RunData{{ExitCode: 1, WallMillis: 3}},
		Diagnostics: []api.Diagnostic{
			{Predicate: "status", Expected: "0", Actual: "1", Message: "exit status 1, expected 0"},
			{Predicate: "stdout", Passed: true},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "basics / echo / c1")
	assert.Contains(t, out, "exit=1 wall=3ms")
	assert.Contains(t, out, `status: exit status 1, expected 0, expected "0", got "1"`)
	assert.NotContains(t, out, "stdout:")
}

func TestQuietPrintsOnlySummary(t *testing.T) {
	var buf bytes.Buffer
	g := termgath.NewWithWriter(&buf, true)

	g.StartRun("id", "hw1")
	g.StartGroup([]string{"s", "g"})
	g.FinishLeaf([]string{"s", "g", "c"}, &api.ResultNode{Kind: api.CaseNode, Status: api.Passed})

	root := &api.ResultNode{
		Kind: api.AssessmentNode, Name: "hw1", Status: api.Passed, Score: 1, Possible: 2, Earned: 2,
		Children: []*api.ResultNode{{Kind: api.SectionNode, Name: "s", Status: api.Passed, Score: 1, Possible: 2}},
	}
	g.FinishRun(api.NewReport("id", "hw1", "", root, time.Now(), time.Now()), nil)

	out := buf.String()
	assert.NotContains(t, out, "-- s / g --")
	assert.Contains(t, out, "hw1 passed 2.00/2.00 (100.0%)")
	assert.Contains(t, out, "  s passed")
	assert.Contains(t, out, "status success")
}

func TestFinishRunError(t *testing.T) {
	var buf bytes.Buffer
	g := termgath.NewWithWriter(&buf, false)
	g.FinishRun(nil, errors.New("program solution missing"))
	assert.Contains(t, buf.String(), "Grading failed: program solution missing")
}
