package api

import "time"

// Result tree and report types, the complete non-streaming grading output.

type NodeKind string

const (
	AssessmentNode NodeKind = "assessment"
	SectionNode    NodeKind = "section"
	GroupNode      NodeKind = "group"
	SuiteNode      NodeKind = "suite"
	CaseNode       NodeKind = "case"
	StepNode       NodeKind = "step"
	BenchmarkNode  NodeKind = "benchmark"
)

type Status string

const (
	Passed          Status = "passed"
	PartiallyPassed Status = "partially_passed"
	Failed          Status = "failed"
	Errored         Status = "errored"
	Skipped         Status = "skipped"
)

// Diagnostic explains one evaluated predicate or an execution problem.
type Diagnostic struct {
	// Predicate is stdout, stderr, status, file:<path>, launch, timeout,
	// setup, teardown, time, memory, stability or leak.
	Predicate string `json:"predicate"`
	Kind      string `json:"kind"`
	Expected  string `json:"expected,omitempty"`
	Actual    string `json:"actual,omitempty"`
	Passed    bool   `json:"passed"`
	Message   string `json:"message,omitempty"`
}

// ResultNode mirrors the shape of the assessment. Leaves are cases, steps
// and benchmarks; every node carries its folded score.
type ResultNode struct {
	Kind   NodeKind `json:"kind"`
	Name   string   `json:"name"`
	Status Status   `json:"status"`
	Mode   string   `json:"mode"`

	Weight   float64 `json:"weight"`
	Earned   float64 `json:"earned"`
	Possible float64 `json:"possible"`
	Score    float64 `json:"score"`

	IsPublic bool `json:"is_public,omitempty"`

	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
	Runs        []RunData     `json:"runs,omitempty"`
	Children    []*ResultNode `json:"children,omitempty"`
}

// Child returns the direct child with the given name.
func (n *ResultNode) Child(name string) *ResultNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Find follows names down the tree, nil when a name is missing.
func (n *ResultNode) Find(names ...string) *ResultNode {
	cur := n
	for _, name := range names {
		if cur = cur.Child(name); cur == nil {
			return nil
		}
	}
	return cur
}

// Walk visits every node depth-first, parents before children.
func (n *ResultNode) Walk(fn func(path []string, node *ResultNode)) {
	var walk func(path []string, node *ResultNode)
	walk = func(path []string, node *ResultNode) {
		fn(path, node)
		for _, c := range node.Children {
			walk(append(path[:len(path):len(path)], c.Name), c)
		}
	}
	walk(nil, n)
}

type RunStatus string

const (
	// RunSuccess means every group produced results.
	RunSuccess RunStatus = "success"
	// RunPartial means at least one group or case errored.
	RunPartial RunStatus = "partial"
)

// Report is the final output of a grading run.
type Report struct {
	RunUuid string      `json:"run_uuid"`
	Title   string      `json:"title"`
	Author  string      `json:"author,omitempty"`
	Status  RunStatus   `json:"status"`
	Root    *ResultNode `json:"root"`

	StartTime   string `json:"start_time"`
	FinishTime  string `json:"finish_time"`
	TotalTimeMs int64  `json:"total_time_ms"`
}

// NewReport stamps a sealed tree with run metadata.
func NewReport(runUuid, title, author string, root *ResultNode, started, finished time.Time) *Report {
	status := RunSuccess
	root.Walk(func(_ []string, node *ResultNode) {
		if node.Status == Errored {
			status = RunPartial
		}
	})
	return &Report{
		RunUuid:     runUuid,
		Title:       title,
		Author:      author,
		Status:      status,
		Root:        root,
		StartTime:   started.Format(time.RFC3339),
		FinishTime:  finished.Format(time.RFC3339),
		TotalTimeMs: finished.Sub(started).Milliseconds(),
	}
}
