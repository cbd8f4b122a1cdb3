package internal

import "github.com/programme-lv/grader/api"

// ResultGatherer receives progress of a grading run. Leaves finish from many
// workers at once, implementations must be safe for concurrent use.
type ResultGatherer interface {
	StartRun(runUuid string, title string)
	StartGroup(path []string)
	FinishLeaf(path []string, node *api.ResultNode)

	// FinishRun gets the report, or a nil report and the error that
	// stopped the run.
	FinishRun(report *api.Report, err error)
}

type NoopGatherer struct{}

func (NoopGatherer) StartRun(string, string) {}
func (NoopGatherer) StartGroup([]string) {}
func (NoopGatherer) FinishLeaf([]string, *api.ResultNode) {}
func (NoopGatherer) FinishRun(*api.Report, error) {}
