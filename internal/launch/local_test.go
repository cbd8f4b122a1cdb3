//go:build unix

package launch_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/programme-lv/grader/internal/launch"
	"github.com/stretchr/testify/require"
)

func TestLocalCapturesOutputAndExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	h, err := launch.NewLocal().Launch(launch.Request{
		Path:   "/bin/sh",
		Args:   []string{"-c", "read x; echo out:$x; echo err >&2; exit 3"},
		Stdin:  strings.NewReader("hello\n"),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.NoError(t, err)

	exit, err := h.Wait()
	require.NoError(t, err)
	require.Equal(t, 3, exit.Code)
	require.Zero(t, exit.Signal)
	require.Equal(t, "out:hello\n", stdout.String())
	require.Equal(t, "err\n", stderr.String())
}

func TestLocalDoesNotInheritEnvironment(t *testing.T) {
	t.Setenv("GRADER_LEAK_CHECK", "leaked")
	var stdout bytes.Buffer
	h, err := launch.NewLocal().Launch(launch.Request{
		Path:   "/bin/sh",
		Args:   []string{"-c", "echo \"[$GRADER_LEAK_CHECK][$ONLY]\""},
		Env:    []string{"ONLY=set"},
		Stdout: &stdout,
	})
	require.NoError(t, err)
	_, err = h.Wait()
	require.NoError(t, err)
	require.Equal(t, "[][set]\n", stdout.String())
}

func TestLocalRunsInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	h, err := launch.NewLocal().Launch(launch.Request{
		Path: "/bin/sh",
		Args: []string{"-c", "echo data > out.txt"},
		Dir:  dir,
	})
	require.NoError(t, err)
	_, err = h.Wait()
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	require.Equal(t, "data\n", string(content))
}

func TestLocalKillTerminatesProcessGroup(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "child.pid")
	h, err := launch.NewLocal().Launch(launch.Request{
		Path: "/bin/sh",
		Args: []string{"-c", "sleep 30 & echo $! > " + pidFile + "; wait"},
	})
	require.NoError(t, err)

	var childPid int
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(pidFile)
		if err != nil || len(bytes.TrimSpace(b)) == 0 {
			return false
		}
		_, err = fmt.Sscan(string(bytes.TrimSpace(b)), &childPid)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Kill())
	exit, err := h.Wait()
	require.NoError(t, err)
	require.Equal(t, int(syscall.SIGKILL), exit.Signal)
	require.Equal(t, -1, exit.Code)

	require.Eventually(t, func() bool {
		return processGone(childPid)
	}, 5*time.Second, 10*time.Millisecond, "background child survived the kill")
}

func TestLocalLaunchMissingExecutable(t *testing.T) {
	_, err := launch.NewLocal().Launch(launch.Request{Path: "/nonexistent/program"})
	require.Error(t, err)
}

func TestLocalKillAfterExitIsHarmless(t *testing.T) {
	h, err := launch.NewLocal().Launch(launch.Request{Path: "/bin/sh", Args: []string{"-c", "exit 0"}})
	require.NoError(t, err)
	exit, err := h.Wait()
	require.NoError(t, err)
	require.Zero(t, exit.Code)
	require.NoError(t, h.Kill())
}

// processGone treats zombies as gone, reaping orphans is up to init.
func processGone(pid int) bool {
	if syscall.Kill(pid, 0) == syscall.ESRCH {
		return true
	}
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return os.IsNotExist(err)
	}
	return strings.Contains(string(stat), ") Z ")
}
