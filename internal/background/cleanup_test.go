package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeCleaner struct {
	calls atomic.Int64
	rows  int64
	err   error
}

func (f *fakeCleaner) CleanupExpired(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	return f.rows, f.err
}

func TestCleanupManager_RunsAllTargetsOnStartup(t *testing.T) {
	resets := &fakeCleaner{rows: 3}
	codes := &fakeCleaner{rows: 0}
	sessions := &fakeCleaner{err: errors.New("db down")}

	cm := NewCleanupManager([]CleanupTarget{
		{Name: "password_resets", Cleaner: resets},
		{Name: "one_time_codes", Cleaner: codes},
		{Name: "sessions", Cleaner: sessions},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	// The first sweep runs before the first tick
	assert.Eventually(t, func() bool {
		return resets.calls.Load() == 1 && codes.calls.Load() == 1 && sessions.calls.Load() == 1
	}, time.Second, 10*time.Millisecond)

	cm.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}

func TestCleanupManager_StopsOnContextCancel(t *testing.T) {
	cm := NewCleanupManager(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop on cancel")
	}
}
