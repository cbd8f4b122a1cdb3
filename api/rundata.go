package api

// RunData is the serialisable record of one process invocation.
type RunData struct {
	Args  []string `json:"args,omitempty"`
	Stdin string   `json:"in,omitempty"`

	Stdout string `json:"out"`
	Stderr string `json:"err"`

	Tag        string `json:"tag"`
	ExitCode   int64  `json:"exit"`
	ExitSignal *int64 `json:"signal"`

	WallMillis    int64 `json:"wall_ms"`
	MemoryKiBytes int64 `json:"mem_kib"`

	StdoutTruncated bool `json:"out_truncated,omitempty"`
	StderrTruncated bool `json:"err_truncated,omitempty"`

	ErrorMessage *string `json:"error_message,omitempty"`
}
