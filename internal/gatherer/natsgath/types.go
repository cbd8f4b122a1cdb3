package natsgath

import (
	"log/slog"
	"sync"

	"github.com/programme-lv/grader/api"
)

type natsGatherer struct {
	pub     publisher
	subject string
	logger  *slog.Logger

	mu      sync.Mutex
	runUuid string
}

func (s *natsGatherer) uuid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runUuid
}

// StartRun implements internal.ResultGatherer.
func (s *natsGatherer) StartRun(runUuid string, title string) {
	s.mu.Lock()
	s.runUuid = runUuid
	s.mu.Unlock()
	s.send(api.NewStartRun(runUuid, title))
}

// StartGroup implements internal.ResultGatherer.
func (s *natsGatherer) StartGroup(path []string) {
	s.send(api.NewStartGroup(s.uuid(), path))
}

// FinishLeaf implements internal.ResultGatherer.
func (s *natsGatherer) FinishLeaf(path []string, node *api.ResultNode) {
	s.send(api.NewFinishLeaf(s.uuid(), path, api.TrimLeaf(node)))
}

// FinishRun implements internal.ResultGatherer.
func (s *natsGatherer) FinishRun(report *api.Report, err error) {
	var msg *string
	if err != nil {
		m := err.Error()
		msg = &m
	}
	s.send(api.NewFinishRun(s.uuid(), report, msg))
}
