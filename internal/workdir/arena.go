// Package workdir hands out private working directories. An index is never
// given to two holders at once, so concurrent jobs cannot alias a directory.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/otiai10/copy"
)

type Arena struct {
	root     string
	idsInUse mapset.Set[int]
	mutex    sync.Mutex
}

// New creates a private directory inside parent and hands out directories
// below it. An empty parent means the system temp dir. Nothing already in
// parent is touched.
func New(parent string) (*Arena, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return nil, fmt.Errorf("failed to create work root: %w", err)
		}
	}
	root, err := os.MkdirTemp(parent, "grader-work-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work root: %w", err)
	}
	return &Arena{
		root:     root,
		idsInUse: mapset.NewThreadUnsafeSet[int](),
	}, nil
}

func (a *Arena) Root() string {
	return a.root
}

// Allocate takes the lowest free index and returns an empty directory for it.
// Label only shows up in errors.
func (a *Arena) Allocate(label string) (*Dir, error) {
	id := a.reserve()
	path := filepath.Join(a.root, strconv.Itoa(id))
	// a released index has its directory removed before it is freed
	if err := os.Mkdir(path, 0755); err != nil {
		a.free(id)
		return nil, fmt.Errorf("failed to create work dir for %s: %w", label, err)
	}
	return &Dir{id: id, path: path, arena: a}, nil
}

// reserve and free only touch the id set, disk work happens outside the lock.
func (a *Arena) reserve() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	id := 0
	for a.idsInUse.Contains(id) {
		id++
	}
	a.idsInUse.Add(id)
	return id
}

func (a *Arena) free(id int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.idsInUse.Remove(id)
}

// InUse is the number of directories currently held.
func (a *Arena) InUse() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.idsInUse.Cardinality()
}

func (a *Arena) release(id int, path string) error {
	if err := os.RemoveAll(path); err != nil {
		// keep the index out of rotation, its directory is not empty
		return err
	}
	a.free(id)
	return nil
}

// Close removes the arena's private directory and everything below it.
func (a *Arena) Close() error {
	return os.RemoveAll(a.root)
}

type Dir struct {
	id     int
	path   string
	arena  *Arena
	closed bool
}

func (d *Dir) Id() int {
	return d.id
}

func (d *Dir) Path() string {
	return d.path
}

// AddFile writes content at a path relative to the directory, creating
// parent directories. Paths cannot escape the directory.
func (d *Dir) AddFile(path string, content []byte) error {
	full := filepath.Join(d.path, filepath.Clean("/"+path))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	return os.WriteFile(full, content, 0644)
}

// CopyFrom copies the contents of src into the directory.
func (d *Dir) CopyFrom(src string) error {
	return copy.Copy(src, d.path, copy.Options{
		PreserveTimes: true,
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Shallow
		},
	})
}

// Close discards the directory and frees its index. Closing twice is a no-op.
func (d *Dir) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.arena.release(d.id, d.path)
}
