package shield

import (
	"context"
	"testing"

	"github.com/shieldrl/shield/store/memory"
)

func TestFixedWindow_AbsentKeyIsFreshWindow(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	exec, err := newFixedWindowExecutor(ctx, s, "tp:fw:K", 3, 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if exec.activeWindow {
		t.Fatal("absent key should not be an active window")
	}
	if exec.count != 0 {
		t.Fatalf("count = %d, want 0", exec.count)
	}
}

func TestFixedWindow_NearExpiryTreatedAsFresh(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	if err := s.SetWithExpire(ctx, "tp:fw:K", "2", 0); err != nil {
		t.Fatal(err)
	}

	exec, err := newFixedWindowExecutor(ctx, s, "tp:fw:K", 3, 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if exec.activeWindow {
		t.Fatal("a window at/below the expiry threshold must be treated as fresh")
	}
}

func TestFixedWindow_ActiveWindowUsesKeepTTL(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	exec, err := newFixedWindowExecutor(ctx, s, "tp:fw:K", 3, 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := exec.Execute(1); err != nil {
		t.Fatal(err)
	}
	ttlBefore, err := s.PTTL(ctx, "tp:fw:K")
	if err != nil {
		t.Fatal(err)
	}

	exec2, err := newFixedWindowExecutor(ctx, s, "tp:fw:K", 3, 1_000)
	if err != nil {
		t.Fatal(err)
	}
	if !exec2.activeWindow {
		t.Fatal("window should be active on the second read")
	}
	if _, err := exec2.Execute(1); err != nil {
		t.Fatal(err)
	}
	ttlAfter, err := s.PTTL(ctx, "tp:fw:K")
	if err != nil {
		t.Fatal(err)
	}
	if ttlAfter > ttlBefore {
		t.Fatalf("KEEPTTL write must not extend the window: before=%d after=%d", ttlBefore, ttlAfter)
	}
}

func TestFixedWindow_InvalidStoredValue(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	if err := s.SetWithExpire(ctx, "tp:fw:K", "bogus", 1000_000_000); err != nil {
		t.Fatal(err)
	}

	_, err := newFixedWindowExecutor(ctx, s, "tp:fw:K", 3, 1_000)
	if err != ErrInvalidFixedWindowCount {
		t.Fatalf("got %v, want ErrInvalidFixedWindowCount", err)
	}
}
