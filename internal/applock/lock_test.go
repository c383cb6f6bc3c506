package applock

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireReleaseBasic(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !l.Held() {
		t.Fatal("expected Held() true after Acquire")
	}
	entries, err := os.ReadDir(filepath.Join(dir, "locked"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 marker file, got %d", len(entries))
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if l.Held() {
		t.Fatal("expected Held() false after Release")
	}
	if _, err := os.Stat(filepath.Join(dir, "locked")); !os.IsNotExist(err) {
		t.Fatalf("expected locked dir removed, stat err = %v", err)
	}
}

func TestAcquireIsReentrant(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release 1: %v", err)
	}
	if !l.Held() {
		t.Fatal("expected still held after one release of two acquires")
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release 2: %v", err)
	}
	if l.Held() {
		t.Fatal("expected released after matching releases")
	}
}

func TestAcquireBreaksStaleLock(t *testing.T) {
	dir := t.TempDir()
	lockedDir := filepath.Join(dir, "locked")
	if err := os.Mkdir(lockedDir, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	marker := filepath.Join(lockedDir, "otherhost-1234-1")
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(marker, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := os.Chtimes(lockedDir, old, old); err != nil {
		t.Fatalf("Chtimes dir: %v", err)
	}

	l := New(dir)
	l.SetTimeout(time.Hour)
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire should break stale lock: %v", err)
	}
	_ = l.Release()
}

func TestAcquireFailsWhenLiveLockHeld(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)
	if err := a.Acquire(); err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer a.Release()

	b := New(dir)
	b.SetTimeout(time.Hour)
	if err := b.Acquire(); err == nil {
		t.Fatal("expected second independent Lock to fail while first holds a fresh marker")
	}
}
