package spec

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// ErrSpecMismatch means a program or file the specification references
// cannot be resolved at grading time.
var ErrSpecMismatch = errors.New("specification does not match the runnable programs")

// ProgramSet maps program references to ready-to-run command templates.
// The engine appends case arguments and never decides how a program is built.
type ProgramSet map[string]Command

// Resolve returns the command template for a program reference. References
// not present in the set are looked up on PATH so setup steps can call
// ordinary tools.
func (ps ProgramSet) Resolve(ref string) (Command, error) {
	if cmd, ok := ps[ref]; ok {
		return cmd, nil
	}
	path, err := exec.LookPath(ref)
	if err != nil {
		return Command{}, fmt.Errorf("%w: program %q: %v", ErrSpecMismatch, ref, err)
	}
	return Command{Program: path}, nil
}

// Check verifies that every declared reference is provided and executable.
func (ps ProgramSet) Check(declared []string) error {
	var missing []string
	for _, ref := range declared {
		cmd, ok := ps[ref]
		if !ok {
			missing = append(missing, fmt.Sprintf("%s (not provided)", ref))
			continue
		}
		if err := checkExecutable(cmd.Program); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%v)", ref, err))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrSpecMismatch, strings.Join(missing, ", "))
}

func checkExecutable(path string) error {
	if !strings.ContainsRune(path, os.PathSeparator) {
		_, err := exec.LookPath(path)
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Mode().Perm()&0111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
