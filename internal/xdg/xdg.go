// Package xdg resolves the grader's per-user directories following the
// XDG base directory layout.
package xdg

import (
	"os"
	"path/filepath"
)

const AppName = "grader"

// Dirs holds the base directories the grader writes to.
type Dirs struct {
	cacheHome  string
	stateHome  string
	runtimeDir string
}

// New reads XDG_CACHE_HOME, XDG_STATE_HOME and XDG_RUNTIME_DIR, falling
// back to the documented defaults under the home directory.
func New() *Dirs {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
		if homeDir == "" {
			homeDir = os.TempDir()
		}
	}

	d := &Dirs{
		cacheHome:  os.Getenv("XDG_CACHE_HOME"),
		stateHome:  os.Getenv("XDG_STATE_HOME"),
		runtimeDir: os.Getenv("XDG_RUNTIME_DIR"),
	}
	if d.cacheHome == "" {
		d.cacheHome = filepath.Join(homeDir, ".cache")
	}
	if d.stateHome == "" {
		d.stateHome = filepath.Join(homeDir, ".local", "state")
	}
	if d.runtimeDir == "" {
		// no session runtime dir, e.g. inside containers
		d.runtimeDir = filepath.Join(os.TempDir(), AppName+"-runtime-"+os.Getenv("USER"))
	}
	return d
}

func (d *Dirs) CacheHome() string {
	return d.cacheHome
}

func (d *Dirs) StateHome() string {
	return d.stateHome
}

func (d *Dirs) RuntimeDir() string {
	return d.runtimeDir
}

// FileCacheDir is where downloaded fixtures are kept between runs.
func (d *Dirs) FileCacheDir() string {
	return filepath.Join(d.cacheHome, AppName, "files")
}

// DownloadTmpDir holds partial downloads before they are verified.
func (d *Dirs) DownloadTmpDir() string {
	return filepath.Join(d.cacheHome, AppName, "tmp")
}

// WorkRoot is the default parent of per-case working directories.
func (d *Dirs) WorkRoot() string {
	return filepath.Join(d.runtimeDir, AppName, "work")
}

// EnsureDir creates the directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// EnsurePrivateDir creates the directory readable by the owner only.
func EnsurePrivateDir(path string) error {
	return os.MkdirAll(path, 0700)
}
