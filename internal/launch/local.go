//go:build unix

package launch

import (
	"errors"
	"os/exec"
	"runtime"
	"syscall"
	"time"
)

// DefaultWaitDelay bounds how long output pipes are drained after the
// process exits, a grandchild holding stdout open cannot stall the runner.
const DefaultWaitDelay = 500 * time.Millisecond

// Local starts processes directly on the host, each in its own process group.
type Local struct {
	WaitDelay time.Duration
}

func NewLocal() *Local {
	return &Local{WaitDelay: DefaultWaitDelay}
}

func (l *Local) Launch(req Request) (Handle, error) {
	cmd := exec.Command(req.Path, req.Args...)
	cmd.Env = req.Env
	if cmd.Env == nil {
		// a nil Env would make os/exec inherit ours
		cmd.Env = []string{}
	}
	cmd.Dir = req.Dir
	cmd.Stdin = req.Stdin
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = l.WaitDelay

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &localProcess{cmd: cmd, pgid: cmd.Process.Pid}, nil
}

type localProcess struct {
	cmd  *exec.Cmd
	pgid int
}

func (p *localProcess) Kill() error {
	return killGroup(p.pgid)
}

func (p *localProcess) Wait() (Exit, error) {
	err := p.cmd.Wait()
	// the leader is gone, stragglers it left in the group go too
	_ = killGroup(p.pgid)

	st := p.cmd.ProcessState
	if st == nil {
		return Exit{}, err
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		return Exit{}, err
	}

	exit := Exit{Code: st.ExitCode()}
	if ws, ok := st.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		exit.Signal = int(ws.Signal())
		exit.Code = -1
	}
	if ru, ok := st.SysUsage().(*syscall.Rusage); ok {
		exit.PeakMemoryKiB = maxRssKiB(ru)
	}
	return exit, nil
}

func killGroup(pgid int) error {
	err := syscall.Kill(-pgid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// maxRssKiB normalises ru_maxrss, darwin reports bytes, linux KiB.
func maxRssKiB(ru *syscall.Rusage) int64 {
	if runtime.GOOS == "darwin" {
		return int64(ru.Maxrss) / 1024
	}
	return int64(ru.Maxrss)
}
