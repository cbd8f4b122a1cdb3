package api

import "time"

// MsgType is a message type for streaming responses
type MsgType string

const (
	StartRunMsg   MsgType = "run_start"
	StartGroupMsg MsgType = "group_start"
	FinishLeafMsg MsgType = "leaf_finish"
	FinishRunMsg  MsgType = "run_finish"
)

// Runtime data size constraints for streaming
const (
	MaxRuntimeDataHeight = 40
	MaxRuntimeDataWidth  = 80
)

// Header is the common header for all streaming response messages
type Header struct {
	RunUuid string  `json:"run_uuid"`
	MsgType MsgType `json:"msg_type"`
}

type StartRun struct {
	Header
	Title       string `json:"title"`
	StartedTime string `json:"started_time"`
}

// StartGroup is sent when a group's first job is scheduled.
type StartGroup struct {
	Header
	Path []string `json:"path"`
}

// FinishLeaf carries a case, step or benchmark result.
type FinishLeaf struct {
	Header
	Path []string    `json:"path"`
	Node *ResultNode `json:"node"`
}

type FinishRun struct {
	Header
	Status       RunStatus `json:"status"`
	Earned       float64   `json:"earned"`
	Possible     float64   `json:"possible"`
	Score        float64   `json:"score"`
	ErrorMessage *string   `json:"error_message"`
	FinishedTime string    `json:"finished_time"`
}

func NewHeader(runUuid string, msgType MsgType) Header {
	return Header{
		RunUuid: runUuid,
		MsgType: msgType,
	}
}

func NewStartRun(runUuid, title string) StartRun {
	return StartRun{
		Header:      NewHeader(runUuid, StartRunMsg),
		Title:       title,
		StartedTime: time.Now().Format(time.RFC3339),
	}
}

func NewStartGroup(runUuid string, path []string) StartGroup {
	return StartGroup{
		Header: NewHeader(runUuid, StartGroupMsg),
		Path:   path,
	}
}

func NewFinishLeaf(runUuid string, path []string, node *ResultNode) FinishLeaf {
	return FinishLeaf{
		Header: NewHeader(runUuid, FinishLeafMsg),
		Path:   path,
		Node:   node,
	}
}

// NewFinishRun summarises a report; a nil report means the run failed as a
// whole with errorMessage.
func NewFinishRun(runUuid string, report *Report, errorMessage *string) FinishRun {
	msg := FinishRun{
		Header:       NewHeader(runUuid, FinishRunMsg),
		ErrorMessage: errorMessage,
		FinishedTime: time.Now().Format(time.RFC3339),
	}
	if report != nil && report.Root != nil {
		msg.Status = report.Status
		msg.Earned = report.Root.Earned
		msg.Possible = report.Root.Possible
		msg.Score = report.Root.Score
	}
	return msg
}
