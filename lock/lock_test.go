package lock

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock_Contention(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := NewFileLock(dir)
	second := NewFileLock(dir)

	require.NoError(t, first.Lock(ctx))
	assert.ErrorIs(t, second.Lock(ctx), ErrLocked)
	assert.ErrorIs(t, first.Lock(ctx), ErrLocked)

	content, err := os.ReadFile(first.Path())
	require.NoError(t, err)
	assert.NotEmpty(t, content)

	require.NoError(t, first.Unlock(ctx))
	assert.ErrorIs(t, first.Unlock(ctx), ErrNotHeld)

	require.NoError(t, second.Lock(ctx))
	require.NoError(t, second.Unlock(ctx))
}

func TestFileLock_CreatesDirectory(t *testing.T) {
	l := NewFileLock(t.TempDir() + "/nested/ws")
	require.NoError(t, l.Lock(context.Background()))
	require.NoError(t, l.Unlock(context.Background()))
}

func TestFileLock_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewFileLock(t.TempDir()).Lock(ctx), context.Canceled)
}

func TestNoop(t *testing.T) {
	var l Locker = Noop{}
	require.NoError(t, l.Lock(context.Background()))
	require.NoError(t, l.Lock(context.Background()))
	require.NoError(t, l.Unlock(context.Background()))
}
