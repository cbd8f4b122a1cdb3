//go:build unix && !linux

package main

import (
	"fmt"

	"github.com/programme-lv/grader/internal/environment"
	"github.com/programme-lv/grader/internal/launch"
)

func newLauncher(sandbox environment.Sandbox) (launch.Launcher, error) {
	switch sandbox {
	case environment.SandboxLocal, "":
		return launch.NewLocal(), nil
	case environment.SandboxIsolate:
		return nil, fmt.Errorf("the isolate sandbox needs linux")
	}
	return nil, fmt.Errorf("unknown sandbox %q", sandbox)
}
