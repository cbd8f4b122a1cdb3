package launch

import (
	"fmt"
)

// Constraints are isolate resource limits, zero fields are left to isolate's
// defaults. Wall time is not here: the runner enforces timeouts itself.
type Constraints struct {
	CpuTimeLimInSec float64
	MemoryLimitInKB int
	MaxProcesses    int
	MaxOpenFiles    int
}

func DefaultConstraints() Constraints {
	return Constraints{
		MemoryLimitInKB: 2048000,
		MaxProcesses:    128,
		MaxOpenFiles:    128,
	}
}

func (constraints *Constraints) ToArgs() []string {
	var args []string
	if constraints.MemoryLimitInKB > 0 {
		args = append(args, fmt.Sprintf("--cg-mem=%d", constraints.MemoryLimitInKB))
	}
	if constraints.CpuTimeLimInSec > 0 {
		args = append(args, fmt.Sprintf("--time=%f", constraints.CpuTimeLimInSec))
	}
	if constraints.MaxProcesses > 0 {
		args = append(args, fmt.Sprintf("--processes=%d", constraints.MaxProcesses))
	}
	if constraints.MaxOpenFiles > 0 {
		args = append(args, fmt.Sprintf("--open-files=%d", constraints.MaxOpenFiles))
	}
	return args
}
