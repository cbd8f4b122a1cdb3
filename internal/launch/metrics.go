package launch

import (
	"fmt"
	"strconv"
	"strings"
)

type isolateMetrics struct {
	TimeSec      float64
	TimeWallSec  float64
	MaxRssKb     int64
	CswVoluntary int64
	CswForced    int64
	CgMemKb      int64
	ExitCode     int64
	ExitSig      int64
	Status       string
	Message      string
}

func (m *isolateMetrics) toExit() Exit {
	exit := Exit{Code: int(m.ExitCode), PeakMemoryKiB: m.CgMemKb}
	if exit.PeakMemoryKiB == 0 {
		exit.PeakMemoryKiB = m.MaxRssKb
	}
	if m.ExitSig != 0 {
		exit.Signal = int(m.ExitSig)
		exit.Code = -1
	}
	return exit
}

// parseMetaFile reads isolate's key:value meta file.
func parseMetaFile(content []byte) (*isolateMetrics, error) {
	m := &isolateMetrics{}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed isolate meta line %q", line)
		}

		var err error
		switch key {
		case "time":
			m.TimeSec, err = strconv.ParseFloat(value, 64)
		case "time-wall":
			m.TimeWallSec, err = strconv.ParseFloat(value, 64)
		case "max-rss":
			m.MaxRssKb, err = strconv.ParseInt(value, 10, 64)
		case "csw-voluntary":
			m.CswVoluntary, err = strconv.ParseInt(value, 10, 64)
		case "csw-forced":
			m.CswForced, err = strconv.ParseInt(value, 10, 64)
		case "cg-mem":
			m.CgMemKb, err = strconv.ParseInt(value, 10, 64)
		case "exitcode":
			m.ExitCode, err = strconv.ParseInt(value, 10, 64)
		case "exitsig":
			m.ExitSig, err = strconv.ParseInt(value, 10, 64)
		case "status":
			m.Status = value
		case "message":
			m.Message = value
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse isolate meta %s: %w", key, err)
		}
	}
	return m, nil
}
