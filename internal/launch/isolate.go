//go:build linux

package launch

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	mapset "github.com/deckarep/golang-set/v2"
)

// Isolate runs every request inside an isolate sandbox box. The request's
// working directory is bound to /box so the executors' directory layout is
// unchanged.
type Isolate struct {
	Binary      string
	Constraints Constraints

	idsInUse mapset.Set[int]
	mutex    sync.Mutex
}

func NewIsolate(constraints Constraints) *Isolate {
	return &Isolate{
		Binary:      "isolate",
		Constraints: constraints,
		idsInUse:    mapset.NewThreadUnsafeSet[int](),
	}
}

// hostDirsBound are visible inside every box by default.
var hostDirsBound = []string{"/bin", "/usr", "/lib", "/lib64", "/etc"}

func (i *Isolate) Launch(req Request) (Handle, error) {
	boxId, err := i.acquireBox()
	if err != nil {
		return nil, err
	}

	metaFilePath, err := newTempIsolateFilePath()
	if err != nil {
		i.releaseBox(boxId)
		return nil, err
	}

	args := []string{
		"--cg",
		fmt.Sprintf("--box-id=%d", boxId),
		"--meta=" + metaFilePath,
		"--chdir=/box",
	}
	if req.Dir != "" {
		args = append(args, fmt.Sprintf("--dir=/box=%s:rw", req.Dir))
	}
	if exeDir := filepath.Dir(req.Path); filepath.IsAbs(req.Path) && !boundByDefault(exeDir) {
		args = append(args, "--dir="+exeDir)
	}
	for _, kv := range req.Env {
		args = append(args, "--env="+kv)
	}
	args = append(args, i.Constraints.ToArgs()...)
	args = append(args, "--run", "--", req.Path)
	args = append(args, req.Args...)

	cmd := exec.Command(i.Binary, args...)
	cmd.Stdin = req.Stdin
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = DefaultWaitDelay

	if err := cmd.Start(); err != nil {
		_ = os.Remove(metaFilePath)
		i.releaseBox(boxId)
		return nil, fmt.Errorf("failed to start isolate: %w", err)
	}

	return &isolateProcess{
		isolate:      i,
		boxId:        boxId,
		cmd:          cmd,
		metaFilePath: metaFilePath,
	}, nil
}

// acquireBox takes the lowest free box id and initialises it.
func (i *Isolate) acquireBox() (int, error) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	id := 0
	for i.idsInUse.Contains(id) {
		id++
	}

	if err := i.cleanupBox(id); err != nil {
		return 0, fmt.Errorf("failed to clean up box %d: %w", id, err)
	}
	if err := i.initBox(id); err != nil {
		return 0, fmt.Errorf("failed to init box %d: %w", id, err)
	}

	i.idsInUse.Add(id)
	return id, nil
}

func (i *Isolate) releaseBox(id int) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	_ = i.cleanupBox(id)
	i.idsInUse.Remove(id)
}

func (i *Isolate) cleanupBox(boxId int) error {
	cmd := exec.Command(i.Binary, "--cg", "--cleanup", fmt.Sprintf("--box-id=%d", boxId))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (i *Isolate) initBox(boxId int) error {
	cmd := exec.Command(i.Binary, "--cg", "--init", fmt.Sprintf("--box-id=%d", boxId))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func boundByDefault(dir string) bool {
	for _, d := range hostDirsBound {
		if dir == d || strings.HasPrefix(dir, d+"/") {
			return true
		}
	}
	return false
}

func newTempIsolateFilePath() (string, error) {
	file, err := os.CreateTemp("", "isolate.*.txt")
	if err != nil {
		return "", err
	}
	err = file.Close()
	if err != nil {
		return "", err
	}
	return file.Name(), nil
}

type isolateProcess struct {
	isolate      *Isolate
	boxId        int
	cmd          *exec.Cmd
	metaFilePath string
}

func (p *isolateProcess) Kill() error {
	// the keeper owns the box pid namespace, killing it takes the box down
	return killGroup(p.cmd.Process.Pid)
}

func (p *isolateProcess) Wait() (Exit, error) {
	defer p.isolate.releaseBox(p.boxId)
	defer os.Remove(p.metaFilePath)

	err := p.cmd.Wait()
	if p.cmd.ProcessState == nil {
		return Exit{}, err
	}

	metaFileBytes, err := os.ReadFile(p.metaFilePath)
	if err != nil {
		return Exit{}, fmt.Errorf("failed to read isolate meta file: %w", err)
	}
	metrics, err := parseMetaFile(metaFileBytes)
	if err != nil {
		return Exit{}, err
	}
	if metrics.Status == "XX" {
		return Exit{}, fmt.Errorf("isolate internal error: %s", metrics.Message)
	}
	return metrics.toExit(), nil
}
