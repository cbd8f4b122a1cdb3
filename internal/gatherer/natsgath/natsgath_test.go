package natsgath

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/programme-lv/grader/api"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu   sync.Mutex
	subj []string
	msgs [][]byte
	fail bool
}

func (f *fakePublisher) Publish(subj string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection closed")
	}
	f.subj = append(f.subj, subj)
	f.msgs = append(f.msgs, data)
	return nil
}

func TestStreamsMessages(t *testing.T) {
	pub := &fakePublisher{}
	g := newGatherer(pub, "grader.results", nil)

	g.StartRun("run-1", "hw1")
	g.StartGroup([]string{"basics", "echo"})
	g.FinishLeaf([]string{"basics", "echo", "c1"}, &api.ResultNode{
		Kind:   api.CaseNode,
		Name:   "c1",
		Status: api.Passed,
		Runs:   []api.RunData{{Stdout: strings.Repeat("o", 500)}},
	})
	g.FinishRun(nil, errors.New("boom"))

	require.Len(t, pub.msgs, 4)
	require.Equal(t, []string{"grader.results", "grader.results", "grader.results", "grader.results"}, pub.subj)

	var start api.StartRun
	require.NoError(t, json.Unmarshal(pub.msgs[0], &start))
	require.Equal(t, api.StartRunMsg, start.MsgType)
	require.Equal(t, "run-1", start.RunUuid)

	var leaf api.FinishLeaf
	require.NoError(t, json.Unmarshal(pub.msgs[2], &leaf))
	require.Equal(t, "run-1", leaf.RunUuid)
	require.Equal(t, api.FinishLeafMsg, leaf.MsgType)
	require.Len(t, leaf.Node.Runs[0].Stdout, api.MaxRuntimeDataWidth+len("[...]"))

	var finish api.FinishRun
	require.NoError(t, json.Unmarshal(pub.msgs[3], &finish))
	require.NotNil(t, finish.ErrorMessage)
	require.Equal(t, "boom", *finish.ErrorMessage)
}

func TestPublishErrorsAreNotFatal(t *testing.T) {
	pub := &fakePublisher{fail: true}
	g := newGatherer(pub, "s", nil)
	g.StartRun("run", "t")
	g.FinishRun(nil, nil)
	require.Empty(t, pub.msgs)
}
