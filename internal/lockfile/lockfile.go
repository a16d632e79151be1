// Package lockfile wraps gofrs/flock with the two primitives the
// coordinator's daemon bootstrap needs: an exclusive blocking lock for
// registry read-modify-write sections, and a non-blocking probe used to
// tell whether a coordinator already owns a data directory before a second
// one tries to start against it (spec.md: "single coordinator per data
// directory").
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FlockExclusiveBlocking acquires an exclusive lock on f, blocking until
// available.
func FlockExclusiveBlocking(f *os.File) error {
	fl := flock.New(f.Name())
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire exclusive lock: %w", err)
	}
	return nil
}

// FlockUnlock releases a lock previously acquired on f's path.
func FlockUnlock(f *os.File) error {
	fl := flock.New(f.Name())
	return fl.Unlock()
}

// TryDaemonLock reports whether a coordinator daemon currently holds the
// exclusive lock on dataDir's lockfile, without blocking. A held lock means
// a live coordinator owns the directory even if its socket file hasn't
// appeared yet.
func TryDaemonLock(dataDir string) (held bool, err error) {
	path := filepath.Join(dataDir, "coord.lock")
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if locked {
		_ = fl.Unlock()
		return false, nil
	}
	return true, nil
}

// AcquireDaemon takes the exclusive, non-blocking daemon lock for dataDir.
// It returns an error if another coordinator already holds it. The returned
// flock.Flock must be kept alive (and Close()d on shutdown) for the
// duration the daemon runs; releasing it early relinquishes ownership.
func AcquireDaemon(dataDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "coord.lock")
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another coordinator already owns %s", dataDir)
	}
	return fl, nil
}
