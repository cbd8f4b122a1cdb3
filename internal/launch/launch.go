// Package launch is the process spawn boundary. The runner only talks to a
// Launcher, so sandboxed backends replace the local one without touching
// the executors.
package launch

import "io"

type Request struct {
	Path string
	Args []string
	// Env is the complete environment, nothing is inherited implicitly.
	Env    []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Exit describes how a reaped process ended.
type Exit struct {
	Code int
	// Signal is non-zero when the process was killed by a signal, Code is -1 then.
	Signal        int
	PeakMemoryKiB int64
}

// Handle controls one started process.
type Handle interface {
	// Wait blocks until the process is reaped. It returns an error only when
	// the process state could not be obtained; a non-zero exit is not an error.
	Wait() (Exit, error)
	// Kill terminates the process together with everything it spawned.
	// Killing an already finished process is not an error.
	Kill() error
}

type Launcher interface {
	Launch(req Request) (Handle, error)
}
