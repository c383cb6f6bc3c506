// Package applock implements AppdirLock, the per-appdir advisory lock that
// every mutating operation (install, uninstall, cleanup) must hold before
// touching the versions directory.
package applock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eskygo/eskygo/internal/eskylog"
	"github.com/eskygo/eskygo/internal/metrics"
)

var log = eskylog.For("applock")

// ErrLockBusy is returned by Acquire when the lock is held by another
// holder and staleness-breaking did not free it within the retry budget.
var ErrLockBusy = errors.New("applock: appdir is locked by another process")

// DefaultTimeout is how old a lock directory's newest marker must be before
// it is considered abandoned and eligible to be broken.
const DefaultTimeout = 3600 * time.Second

// maxRetries bounds the number of stale-lock-break-and-retry cycles Acquire
// will attempt before giving up with ErrLockBusy.
const maxRetries = 5

// tidSeq fabricates a per-process "thread id" component for marker file
// names. Go does not expose OS thread identifiers, so instead every Lock
// value that acquires gets a distinct sequence number; combined with pid
// this still gives each concurrent holder within this process a unique
// marker name, which is all the directory-based protocol requires.
var tidSeq int64

// Lock is a per-appdir advisory lock realized as a directory containing one
// marker file per holder. It is reentrant within a single Lock value: Lock
// values are not safe to share across goroutines that should be treated as
// independent holders — construct one Lock per logical holder.
type Lock struct {
	dir     string
	marker  string
	timeout time.Duration

	mu    sync.Mutex
	count int
}

// New returns a Lock bound to the "locked" directory under appdir.
func New(appdir string) *Lock {
	return &Lock{
		dir:     filepath.Join(appdir, "locked"),
		timeout: DefaultTimeout,
	}
}

// SetTimeout overrides the staleness threshold used to break abandoned
// locks; intended for tests.
func (l *Lock) SetTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timeout = d
}

// Acquire takes the lock, blocking only for the bounded retry budget spent
// breaking a stale lock — it never waits indefinitely for a live holder.
// Reentrant: calling Acquire again from the same Lock value while already
// held increments an internal counter and refreshes the marker's mtime.
func (l *Lock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count > 0 {
		l.count++
		l.touchMarker()
		return nil
	}

	marker := markerName()
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := os.Mkdir(l.dir, 0o755); err != nil {
			if !os.IsExist(err) {
				return fmt.Errorf("applock: create lock dir: %w", err)
			}
			broke, err := l.breakIfStale()
			if err != nil {
				return fmt.Errorf("applock: inspect lock dir: %w", err)
			}
			if !broke {
				continue
			}
			continue
		}
		path := filepath.Join(l.dir, marker)
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return fmt.Errorf("applock: create marker: %w", err)
		}
		l.marker = path
		l.count = 1
		metrics.LockAcquisitions.WithLabelValues(l.dir).Inc()
		log.Debugf("acquired lock at %s (marker %s)", l.dir, marker)
		return nil
	}
	return ErrLockBusy
}

// Release decrements the reentrancy counter; on reaching zero it removes
// its own marker and, if the directory is now empty, removes the directory
// too (a non-empty directory just means other holders remain, which is not
// an error).
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return errors.New("applock: Release called without a matching Acquire")
	}
	l.count--
	if l.count > 0 {
		return nil
	}

	if l.marker != "" {
		if err := os.Remove(l.marker); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("applock: remove marker: %w", err)
		}
		l.marker = ""
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("applock: read lock dir: %w", err)
		}
	} else if len(entries) == 0 {
		if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("applock: remove lock dir: %w", err)
		}
	}
	log.Debugf("released lock at %s", l.dir)
	return nil
}

// Held reports whether this Lock value currently holds the lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count > 0
}

func (l *Lock) touchMarker() {
	if l.marker == "" {
		return
	}
	if err := touchPath(l.marker); err != nil {
		log.Debugf("touch marker %s: %v", l.marker, err)
	}
}

// breakIfStale removes l.dir if every entry in it (and the directory
// itself) is older than the configured timeout, reporting whether it did
// so. A directory that no longer exists by the time it's inspected is
// treated as already broken by a racing holder.
func (l *Lock) breakIfStale() (bool, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	newest := info.ModTime()

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}

	if time.Since(newest) < l.timeout {
		return false, nil
	}
	if err := os.RemoveAll(l.dir); err != nil {
		return false, err
	}
	metrics.LockStaleBreaks.WithLabelValues(l.dir).Inc()
	log.Warnf("broke stale lock at %s (idle since %s)", l.dir, newest)
	return true, nil
}

func markerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	tid := atomic.AddInt64(&tidSeq, 1)
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), tid)
}
