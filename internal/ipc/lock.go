package ipc

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFile is the singleton lock under the data directory. The monitor
// holds it for the lifetime of a run; controllers probe it to tell whether
// a monitor is live.
const LockFile = "monitor.lock"

// AcquireLock takes the exclusive monitor lock without blocking. The
// returned lock stays held until Unlock; a second monitor on the same data
// directory fails fast.
func AcquireLock(dir string) (*flock.Flock, error) {
	fl := flock.New(filepath.Join(dir, LockFile))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire monitor lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("another monitor holds %s", fl.Path())
	}
	return fl, nil
}

// MonitorLive reports whether some process currently holds the monitor
// lock. The probe acquires and immediately releases the lock, so it must
// not be called from the process that owns it.
func MonitorLive(dir string) bool {
	fl := flock.New(filepath.Join(dir, LockFile))
	ok, err := fl.TryLock()
	if err != nil {
		return false
	}
	if !ok {
		return true
	}
	_ = fl.Unlock()
	return false
}
