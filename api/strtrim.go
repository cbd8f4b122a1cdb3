package api

import (
	"strings"
)

func trimStrToRect(s string, maxHeight int, maxWidth int) string {
	if s == "" {
		return ""
	}
	var res strings.Builder
	lines := strings.Split(s, "\n")
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
		lines = append(lines, "[...]")
	}
	for i, line := range lines {
		if i > 0 {
			res.WriteByte('\n')
		}
		if len(line) > maxWidth {
			res.WriteString(line[:maxWidth] + "[...]")
		} else {
			res.WriteString(line)
		}
	}
	return res.String()
}

// TrimRuntimeData returns a copy of data whose streams fit into a
// maxHeight x maxWidth rectangle.
func TrimRuntimeData(data *RunData, maxHeight int, maxWidth int) *RunData {
	if data == nil {
		return nil
	}
	trimmed := *data
	trimmed.Stdin = trimStrToRect(data.Stdin, maxHeight, maxWidth)
	trimmed.Stdout = trimStrToRect(data.Stdout, maxHeight, maxWidth)
	trimmed.Stderr = trimStrToRect(data.Stderr, maxHeight, maxWidth)
	return &trimmed
}

// TrimLeaf copies a leaf node with every run trimmed for streaming.
func TrimLeaf(node *ResultNode) *ResultNode {
	if node == nil {
		return nil
	}
	trimmed := *node
	trimmed.Runs = make([]RunData, len(node.Runs))
	for i := range node.Runs {
		trimmed.Runs[i] = *TrimRuntimeData(&node.Runs[i], MaxRuntimeDataHeight, MaxRuntimeDataWidth)
	}
	if node.Diagnostics != nil {
		trimmed.Diagnostics = make([]Diagnostic, len(node.Diagnostics))
	}
	for i, d := range node.Diagnostics {
		d.Actual = trimStrToRect(d.Actual, MaxRuntimeDataHeight, MaxRuntimeDataWidth)
		d.Expected = trimStrToRect(d.Expected, MaxRuntimeDataHeight, MaxRuntimeDataWidth)
		trimmed.Diagnostics[i] = d
	}
	return &trimmed
}
