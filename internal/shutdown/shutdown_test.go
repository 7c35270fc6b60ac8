package shutdown

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ironsheep/plotting-mcp/internal/logger"
)

func newTestLogger() *logger.Logger {
	var buf bytes.Buffer
	return logger.New(logger.Config{
		Level:  "debug",
		Format: "json",
		Output: &buf,
	})
}

func TestNewManager(t *testing.T) {
	t.Run("with default timeout", func(t *testing.T) {
		mgr := NewManager(newTestLogger(), 0)
		if mgr.timeout != 30*time.Second {
			t.Errorf("expected 30s default, got %s", mgr.timeout)
		}
	})

	t.Run("with nil logger", func(t *testing.T) {
		if mgr := NewManager(nil, time.Second); mgr == nil {
			t.Fatal("expected manager to be non-nil")
		}
	})
}

func TestShutdownRunsHandlersInReverse(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	var order []string
	for _, name := range []string{"datasets", "dispatcher", "http-server"} {
		name := name
		mgr.RegisterSimple(name, func() { order = append(order, name) })
	}

	if err := mgr.Shutdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "http-server,dispatcher,datasets"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order: got %s, want %s", got, want)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	var calls atomic.Int32
	mgr.RegisterSimple("counter", func() { calls.Add(1) })

	mgr.Shutdown()
	mgr.Shutdown()

	if calls.Load() != 1 {
		t.Errorf("expected handler to run once, ran %d times", calls.Load())
	}
}

func TestShutdownJoinsErrors(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	failure := errors.New("listener stuck")
	var ran atomic.Bool
	mgr.RegisterSimple("after", func() { ran.Store(true) })
	mgr.Register("failing", func(ctx context.Context) error { return failure })

	err := mgr.Shutdown()
	if !errors.Is(err, failure) {
		t.Fatalf("expected joined error to wrap the failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "failing") {
		t.Errorf("error should name the handler: %v", err)
	}
	if !ran.Load() {
		t.Error("a failing handler must not stop the rest")
	}
}

func TestShutdownTimeout(t *testing.T) {
	mgr := NewManager(newTestLogger(), 100*time.Millisecond)

	var skipped atomic.Bool
	mgr.RegisterSimple("never", func() { skipped.Store(true) })
	mgr.Register("slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
		return nil
	})

	start := time.Now()
	err := mgr.Shutdown()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown took too long: %v", elapsed)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error for the skipped handler, got %v", err)
	}
	if skipped.Load() {
		t.Error("handler after the deadline should be skipped")
	}
}

func TestDoneAndContext(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)
	ctx := mgr.Context()

	select {
	case <-mgr.Done():
		t.Fatal("done closed before shutdown")
	case <-ctx.Done():
		t.Fatal("context canceled before shutdown")
	default:
	}

	mgr.Shutdown()

	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Error("expected done channel to be closed after shutdown")
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("expected context to be canceled after shutdown")
	}
}

func TestWaitWithContext(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	var ran atomic.Bool
	mgr.RegisterSimple("cleanup", func() { ran.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := mgr.WaitWithContext(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran.Load() {
		t.Error("expected cleanup to run when the context ends")
	}
}
