package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/ports"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcher_PreservesOrderPerKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(4, zerolog.Nop())
	var (
		mu   sync.Mutex
		seen = map[string][]string{}
	)
	d.Handle("record", func(_ context.Context, task ports.Task) error {
		mu.Lock()
		seen[task.Key] = append(seen[task.Key], task.ID)
		mu.Unlock()
		return nil
	})
	d.Start(ctx)

	keys := []string{"u1", "u2", "u3"}
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		for _, k := range keys {
			d.Enqueue(ports.Task{ID: id, Name: "record", Key: k})
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, k := range keys {
			if len(seen[k]) != len(ids) {
				return false
			}
		}
		return true
	})

	mu.Lock()
	defer mu.Unlock()
	for _, k := range keys {
		for i, id := range ids {
			if seen[k][i] != id {
				t.Fatalf("key %s: expected order %v, got %v", k, ids, seen[k])
			}
		}
	}
}

func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	d := NewDispatcher(1, zerolog.Nop())

	var accepted, refused int
	done := make(chan struct{})
	go func() {
		// Workers are not started, so the buffer fills and the rest is dropped.
		for i := 0; i < channelBuffer+10; i++ {
			if d.Enqueue(ports.Task{Name: "noop", Key: "u1"}) {
				accepted++
			} else {
				refused++
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full buffer")
	}
	if got := len(d.workers[0]); got != channelBuffer {
		t.Fatalf("expected %d buffered tasks, got %d", channelBuffer, got)
	}
	if accepted != channelBuffer || refused != 10 {
		t.Fatalf("expected %d accepted and 10 refused, got %d and %d", channelBuffer, accepted, refused)
	}
}

func TestDispatcher_ShutdownRunsBufferedTasks(t *testing.T) {
	d := NewDispatcher(2, zerolog.Nop())
	var (
		mu  sync.Mutex
		ran int
	)
	d.Handle("record", func(ctx context.Context, _ ports.Task) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		mu.Lock()
		ran++
		mu.Unlock()
		return nil
	})
	for i := 0; i < 20; i++ {
		if !d.Enqueue(ports.Task{Name: "record", Key: string(rune('a' + i))}) {
			t.Fatalf("enqueue %d refused", i)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if ran != 20 {
		t.Fatalf("expected all 20 buffered tasks to run on shutdown, ran %d", ran)
	}
}

func TestDispatcher_RunWithoutHandler(t *testing.T) {
	d := NewDispatcher(1, zerolog.Nop())

	err := d.run(context.Background(), ports.Task{Name: "unknown"})
	if !errors.Is(err, errNoHandler) {
		t.Fatalf("expected errNoHandler, got %v", err)
	}
}

func TestDispatcher_ShardIndexStable(t *testing.T) {
	d := NewDispatcher(8, zerolog.Nop())

	first := d.shardIndex("user-42")
	for i := 0; i < 10; i++ {
		if got := d.shardIndex("user-42"); got != first {
			t.Fatalf("shard changed: %d vs %d", first, got)
		}
	}
	if first < 0 || first >= 8 {
		t.Fatalf("shard out of range: %d", first)
	}
}

type fakeRemover struct {
	mu      sync.Mutex
	removed []string
	revoked map[string]string
	err     error
}

func (f *fakeRemover) Remove(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, userID)
	return f.err
}

func (f *fakeRemover) Revoke(_ context.Context, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revoked == nil {
		f.revoked = make(map[string]string)
	}
	f.revoked[userID] = token
	return f.err
}

func TestAuthHandlers_RemoveRefreshToken(t *testing.T) {
	d := NewDispatcher(1, zerolog.Nop())
	remover := &fakeRemover{}
	RegisterAuthHandlers(d, remover, zerolog.Nop())

	if err := d.run(context.Background(), ports.Task{Name: ports.TaskRemoveRefreshToken, Key: "u1"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(remover.removed) != 1 || remover.removed[0] != "u1" {
		t.Fatalf("expected removal for u1, got %v", remover.removed)
	}

	if err := d.run(context.Background(), ports.Task{Name: ports.TaskRemoveRefreshToken}); err == nil {
		t.Fatal("expected error for empty key")
	}

	remover.err = errors.New("redis down")
	if err := d.run(context.Background(), ports.Task{Name: ports.TaskRemoveRefreshToken, Key: "u2"}); err == nil {
		t.Fatal("expected store error to surface")
	}
}

func TestAuthHandlers_RemoveRefreshTokenWithToken(t *testing.T) {
	d := NewDispatcher(1, zerolog.Nop())
	remover := &fakeRemover{}
	RegisterAuthHandlers(d, remover, zerolog.Nop())

	task := ports.Task{
		Name: ports.TaskRemoveRefreshToken,
		Key:  "u1",
		Args: map[string]string{ports.TaskArgRefreshToken: "rt-1"},
	}
	if err := d.run(context.Background(), task); err != nil {
		t.Fatalf("run: %v", err)
	}
	if remover.revoked["u1"] != "rt-1" {
		t.Fatalf("expected compare-and-delete of rt-1, got %v", remover.revoked)
	}
	if len(remover.removed) != 0 {
		t.Fatalf("unconditional removal must not run when a token is given, got %v", remover.removed)
	}
}

func TestAuthHandlers_NotificationsSucceed(t *testing.T) {
	d := NewDispatcher(1, zerolog.Nop())
	RegisterAuthHandlers(d, &fakeRemover{}, zerolog.Nop())

	for _, name := range []string{
		ports.TaskNotifyAccountLocked,
		ports.TaskOfferPasswordReset,
		ports.TaskReportError,
	} {
		task := ports.Task{Name: name, Key: "u1", Args: map[string]string{"kind": "temporary"}}
		if err := d.run(context.Background(), task); err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}
}
