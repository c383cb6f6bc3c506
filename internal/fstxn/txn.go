// Package fstxn implements FSTransaction, the ordered, revertible log of
// filesystem operations BootstrapSwapper and the cleanup engine use to make
// multi-step installs and uninstalls look atomic: either every recorded
// operation lands, or every completed move is reversed. Completed removals
// are not undone.
package fstxn

import (
	"errors"
	"fmt"
	"os"

	"github.com/eskygo/eskygo/internal/eskylog"
	"github.com/eskygo/eskygo/internal/fsops"
)

var log = eskylog.For("fstxn")

// ErrTerminal is returned by any method called on a Txn that has already
// committed or aborted.
var ErrTerminal = errors.New("fstxn: transaction is already terminal")

type opKind int

const (
	opMove opKind = iota
	opRemove
)

type op struct {
	kind     opKind
	src, dst string // dst unused for opRemove

	// done records whether this operation actually executed, so Abort
	// only reverses work it really did.
	done bool
	// sidecar is the path an existing destination was renamed to before
	// the move (on every platform), so abort can restore it; after a
	// commit it is listed in Txn.Sidecars.
	sidecar string
}

// Txn is a single use, single goroutine ordered log of move/remove
// operations. Call Move/Remove to record intended operations, then exactly
// one of Commit or Abort.
type Txn struct {
	root string // appdir the transaction is rooted at, for logging only
	ops  []*op
	done bool

	// Sidecars collects paths of ".old" sidecar files left behind by
	// committed moves: every move onto an existing destination renames
	// that destination aside first, on every platform. Neither this
	// package nor the cleanup engine removes them; they stay on disk.
	Sidecars []string
}

// New returns a Txn rooted at appdir (used only for diagnostics).
func New(appdir string) *Txn {
	return &Txn{root: appdir}
}

// Move records an intended rename of src to dst. Operations are recorded in
// the order the caller wants them applied; BootstrapSwapper is responsible
// for recording moves that introduce a new file before moves that remove a
// file the old version depended on.
func (t *Txn) Move(src, dst string) error {
	if t.done {
		return ErrTerminal
	}
	t.ops = append(t.ops, &op{kind: opMove, src: src, dst: dst})
	return nil
}

// Remove records an intended removal of an empty directory or a file.
func (t *Txn) Remove(path string) error {
	if t.done {
		return ErrTerminal
	}
	t.ops = append(t.ops, &op{kind: opRemove, src: path})
	return nil
}

// Commit applies every recorded operation in order. If any operation fails,
// Commit reverses every move that had already succeeded (in LIFO order)
// and returns the triggering error; removals that had already succeeded
// are not restored. The transaction is terminal either way once Commit
// returns.
func (t *Txn) Commit() error {
	if t.done {
		return ErrTerminal
	}
	t.done = true

	for i, o := range t.ops {
		if err := t.apply(o); err != nil {
			log.Warnf("commit failed at op %d/%d (%s): %v; reverting", i+1, len(t.ops), describe(o), err)
			t.revert(i)
			return fmt.Errorf("fstxn: commit failed, reverted: %w", err)
		}
	}
	log.Debugf("committed %d operations under %s", len(t.ops), t.root)
	return nil
}

// Abort reverses every move that had already been applied, in LIFO order
// (applied removals are not restored), and marks the transaction terminal. It is a no-op to call Abort on
// a transaction with no applied operations.
func (t *Txn) Abort() error {
	if t.done {
		return ErrTerminal
	}
	t.done = true
	t.revert(len(t.ops))
	return nil
}

func (t *Txn) apply(o *op) error {
	switch o.kind {
	case opMove:
		if _, err := os.Stat(o.dst); err == nil {
			sidecar := o.dst + ".old"
			if err := fsops.Rename(o.dst, sidecar); err != nil {
				return fmt.Errorf("set aside existing %s: %w", o.dst, err)
			}
			o.sidecar = sidecar
		}
		if err := fsops.Rename(o.src, o.dst); err != nil {
			return fmt.Errorf("move %s -> %s: %w", o.src, o.dst, err)
		}
		o.done = true
		if o.sidecar != "" {
			t.Sidecars = append(t.Sidecars, o.sidecar)
		}
		return nil
	case opRemove:
		if err := removeOne(o.src); err != nil {
			return fmt.Errorf("remove %s: %w", o.src, err)
		}
		o.done = true
		return nil
	default:
		return fmt.Errorf("unknown op kind %d", o.kind)
	}
}

// revert reverses applied operations with index < upto, in LIFO order.
func (t *Txn) revert(upto int) {
	for i := upto - 1; i >= 0; i-- {
		o := t.ops[i]
		if !o.done {
			continue
		}
		switch o.kind {
		case opMove:
			if err := fsops.Rename(o.dst, o.src); err != nil {
				log.Errorf("revert move %s -> %s: %v", o.dst, o.src, err)
				continue
			}
			if o.sidecar != "" {
				if err := fsops.Rename(o.sidecar, o.dst); err != nil {
					log.Errorf("revert sidecar %s -> %s: %v", o.sidecar, o.dst, err)
				}
			}
		case opRemove:
			// Removal of an empty dir or a file cannot be reconstructed
			// without a shadow copy, and none is kept: a removed file or
			// directory stays removed after a revert. Log for visibility
			// only.
			log.Debugf("cannot revert remove of %s; proceeding", o.src)
		}
	}
}

func removeOne(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return fsops.RemoveEmptyDir(path)
	}
	return os.Remove(path)
}

func describe(o *op) string {
	switch o.kind {
	case opMove:
		return fmt.Sprintf("move %s -> %s", o.src, o.dst)
	default:
		return fmt.Sprintf("remove %s", o.src)
	}
}
