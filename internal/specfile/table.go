package specfile

import (
	"fmt"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/kballard/go-shellquote"

	"github.com/programme-lv/grader/internal/spec"
)

// Table columns. Every other header is rejected.
const (
	colName   = "name"
	colWeight = "weight"
	colArgs   = "args"
	colStdin  = "stdin"
	colStdout = "stdout"
	colStderr = "stderr"
	colStatus = "status"
)

var knownColumns = mapset.NewThreadUnsafeSet(colName, colWeight, colArgs, colStdin, colStdout, colStderr, colStatus)
var expectColumns = mapset.NewThreadUnsafeSet(colStdout, colStderr, colStatus)

// tableCases expands a compact table, one row per case.
func (c *converter) tableCases(where string, program string, t *specTable) []spec.TestCase {
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, h := range t.Header {
		if !knownColumns.Contains(h) {
			c.fail(where, "unknown column %q", h)
			return nil
		}
		if !seen.Add(h) {
			c.fail(where, "column %q appears twice", h)
			return nil
		}
	}
	if seen.Intersect(expectColumns).IsEmpty() {
		c.fail(where, "header needs at least one of stdout, stderr or status")
		return nil
	}

	var cases []spec.TestCase
	for i, row := range t.Rows {
		rw := fmt.Sprintf("%s.rows[%d]", where, i)
		if len(row) != len(t.Header) {
			c.fail(rw, "row has %d cells, header has %d", len(row), len(t.Header))
			continue
		}
		tc := spec.TestCase{
			Name:    fmt.Sprintf("Case %d", i+1),
			Program: program,
			Match:   spec.AllOf,
			Weight:  1,
		}
		for j, h := range t.Header {
			c.applyCell(rw, &tc, h, row[j])
		}
		cases = append(cases, tc)
	}
	return cases
}

func (c *converter) applyCell(where string, tc *spec.TestCase, column string, cell any) {
	where = fmt.Sprintf("%s.%s", where, column)
	switch column {
	case colName:
		tc.Name = cellString(cell)
	case colWeight:
		w, ok := cellFloat(cell)
		if !ok {
			c.fail(where, "weight must be a number, got %v", cell)
			return
		}
		tc.Weight = c.weight(where, &w)
	case colArgs:
		args, err := shellquote.Split(cellString(cell))
		if err != nil {
			c.fail(where, "cannot split arguments: %v", err)
			return
		}
		tc.Args = args
	case colStdin:
		tc.Stdin = []byte(cellString(cell))
	case colStdout:
		s := cellString(cell)
		tc.Expect.Stdout = &spec.Text{Exact: &s, Trim: true}
	case colStderr:
		s := cellString(cell)
		tc.Expect.Stderr = &spec.Text{Exact: &s, Trim: true}
	case colStatus:
		code, ok := cellInt(cell)
		if !ok {
			c.fail(where, "status must be an integer, got %v", cell)
			return
		}
		tc.Expect.Status = spec.ExitCode(code)
	}
}

func cellString(cell any) string {
	switch v := cell.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return fmt.Sprint(cell)
}

func cellInt(cell any) (int, bool) {
	switch v := cell.(type) {
	case int64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

func cellFloat(cell any) (float64, bool) {
	switch v := cell.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
