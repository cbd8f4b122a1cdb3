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
		return launch.NewIsolate(launch.DefaultConstraints()), nil
	}
	return nil, fmt.Errorf("unknown sandbox %q", sandbox)
}
