package sqsgath

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/programme-lv/grader/api"
	"github.com/stretchr/testify/require"
)

type fakeSqs struct {
	mu     sync.Mutex
	inputs []*sqs.SendMessageInput
}

func (f *fakeSqs) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func TestSendsReportSummary(t *testing.T) {
	client := &fakeSqs{}
	g := newGatherer(context.Background(), client, "https://sqs.example/queue", nil)

	root := &api.ResultNode{Kind: api.AssessmentNode, Name: "hw", Status: api.Passed, Earned: 3, Possible: 4, Score: 0.75}
	now := time.Now()
	report := api.NewReport("run-7", "hw", "", root, now, now)

	g.StartRun("run-7", "hw")
	g.FinishRun(report, nil)

	require.Len(t, client.inputs, 2)
	require.Equal(t, "https://sqs.example/queue", *client.inputs[0].QueueUrl)

	var finish api.FinishRun
	require.NoError(t, json.Unmarshal([]byte(*client.inputs[1].MessageBody), &finish))
	require.Equal(t, api.FinishRunMsg, finish.MsgType)
	require.Equal(t, "run-7", finish.RunUuid)
	require.Equal(t, api.RunSuccess, finish.Status)
	require.InDelta(t, 0.75, finish.Score, 1e-9)
	require.Nil(t, finish.ErrorMessage)
}
