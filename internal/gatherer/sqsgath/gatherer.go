package sqsgath

import (
	"context"
	"log/slog"
	"sync"

	"github.com/programme-lv/grader/api"
)

type sqsResQueueGatherer struct {
	ctx       context.Context
	sqsClient sendMessageAPI
	queueUrl  string
	logger    *slog.Logger

	mu       sync.Mutex
	runUuid  string
	sentLeaf int
}

func (s *sqsResQueueGatherer) uuid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runUuid
}

func (s *sqsResQueueGatherer) StartRun(runUuid string, title string) {
	s.mu.Lock()
	s.runUuid = runUuid
	s.mu.Unlock()
	s.send(api.NewStartRun(runUuid, title))
}

func (s *sqsResQueueGatherer) StartGroup(path []string) {
	s.send(api.NewStartGroup(s.uuid(), path))
}

func (s *sqsResQueueGatherer) FinishLeaf(path []string, node *api.ResultNode) {
	s.mu.Lock()
	s.sentLeaf++
	s.mu.Unlock()
	s.send(api.NewFinishLeaf(s.uuid(), path, api.TrimLeaf(node)))
}

func (s *sqsResQueueGatherer) FinishRun(report *api.Report, err error) {
	var msg *string
	if err != nil {
		m := err.Error()
		msg = &m
	}
	s.mu.Lock()
	leaves := s.sentLeaf
	s.mu.Unlock()
	s.logger.Debug("run finished", "leaf_messages", leaves)
	s.send(api.NewFinishRun(s.uuid(), report, msg))
}
