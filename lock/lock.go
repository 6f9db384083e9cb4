// Package lock enforces the single-writer rule for a workspace.
//
// Exactly one unibase instance may own a workspace at a time. Locally the
// owner holds an exclusive lock on the workspace's LOCK file; for remote
// workspaces the lock/dynamo package provides a lease held in DynamoDB.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// FileName is the name of the lock file inside a local workspace.
const FileName = "LOCK"

var (
	// ErrLocked is returned by Lock when another owner holds the lock.
	ErrLocked = errors.New("lock: held by another owner")

	// ErrNotHeld is returned by Unlock when the caller does not hold the lock.
	ErrNotHeld = errors.New("lock: not held")
)

// Locker guards a workspace against concurrent owners.
type Locker interface {
	// Lock acquires the lock without waiting. It returns ErrLocked while
	// another owner holds it.
	Lock(ctx context.Context) error

	// Unlock releases the lock.
	Unlock(ctx context.Context) error
}

// Noop is a Locker that never blocks, for workspaces whose exclusivity is
// guaranteed elsewhere.
type Noop struct{}

// Lock implements Locker.
func (Noop) Lock(context.Context) error { return nil }

// Unlock implements Locker.
func (Noop) Unlock(context.Context) error { return nil }

// FileLock is an exclusive lock on a file inside a workspace directory.
//
// On Unix it uses flock(2), which the kernel releases if the process dies.
// Elsewhere the lock file is created exclusively and removed on Unlock.
type FileLock struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// NewFileLock returns a lock on dir/LOCK.
func NewFileLock(dir string) *FileLock {
	return &FileLock{path: filepath.Join(dir, FileName)}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// Lock implements Locker.
func (l *FileLock) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f != nil {
		return fmt.Errorf("%w: already held by this handle", ErrLocked)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	f, err := acquire(l.path)
	if err != nil {
		return err
	}

	// Record the owner for humans; errors here do not affect the lock.
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)

	l.f = f
	return nil
}

// Unlock implements Locker.
func (l *FileLock) Unlock(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return ErrNotHeld
	}
	err := release(l.f)
	l.f = nil
	return err
}
