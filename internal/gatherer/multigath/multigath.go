// Package multigath fans progress events out to several gatherers.
package multigath

import (
	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal"
)

type MultiGatherer []internal.ResultGatherer

// New drops nil gatherers.
func New(gatherers ...internal.ResultGatherer) MultiGatherer {
	var m MultiGatherer
	for _, g := range gatherers {
		if g != nil {
			m = append(m, g)
		}
	}
	return m
}

func (m MultiGatherer) StartRun(runUuid string, title string) {
	for _, g := range m {
		g.StartRun(runUuid, title)
	}
}

func (m MultiGatherer) StartGroup(path []string) {
	for _, g := range m {
		g.StartGroup(path)
	}
}

func (m MultiGatherer) FinishLeaf(path []string, node *api.ResultNode) {
	for _, g := range m {
		g.FinishLeaf(path, node)
	}
}

func (m MultiGatherer) FinishRun(report *api.Report, err error) {
	for _, g := range m {
		g.FinishRun(report, err)
	}
}
