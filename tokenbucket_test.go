package shield

import (
	"context"
	"testing"
	"time"

	"github.com/shieldrl/shield/store/memory"
)

func TestTokenBucket_NoTTLTreatedAsNoRefill(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	if err := s.SetKeepTTL(ctx, "tp:tb:K", "5"); err != nil {
		t.Fatal(err)
	}

	exec, err := newTokenBucketExecutor(ctx, s, "tp:tb:K", 10, 60_000)
	if err != nil {
		t.Fatal(err)
	}
	if exec.tokens != 5 {
		t.Fatalf("tokens = %d, want 5 (no refill on a key with no TTL)", exec.tokens)
	}
}

func TestTokenBucket_AbsentKeyIsFullCapacity(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	exec, err := newTokenBucketExecutor(ctx, s, "tp:tb:K", 10, 60_000)
	if err != nil {
		t.Fatal(err)
	}
	if exec.tokens != 10 {
		t.Fatalf("tokens = %d, want 10 (absent key starts full)", exec.tokens)
	}
}

func TestTokenBucket_InvalidStoredValue(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	if err := s.SetKeepTTL(ctx, "tp:tb:K", "not-a-number"); err != nil {
		t.Fatal(err)
	}

	_, err := newTokenBucketExecutor(ctx, s, "tp:tb:K", 10, 60_000)
	if err != ErrInvalidTokenCount {
		t.Fatalf("got %v, want ErrInvalidTokenCount", err)
	}
}

func TestTokenBucket_CapacityLoweredMidLifetimeClampsStored(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	if err := s.SetWithExpire(ctx, "tp:tb:K", "100", time.Minute); err != nil {
		t.Fatal(err)
	}

	exec, err := newTokenBucketExecutor(ctx, s, "tp:tb:K", 10, 60_000)
	if err != nil {
		t.Fatal(err)
	}
	if exec.tokens != 10 {
		t.Fatalf("tokens = %d, want clamped to new capacity 10", exec.tokens)
	}
}

func TestTokenBucket_ConstructionDoesNotMutateStore(t *testing.T) {
	s := memory.New()
	defer s.Close()
	ctx := context.Background()

	if _, err := newTokenBucketExecutor(ctx, s, "tp:tb:K", 10, 60_000); err != nil {
		t.Fatal(err)
	}

	if _, found, _ := s.Get(ctx, "tp:tb:K"); found {
		t.Fatal("constructing an executor must not write to the store")
	}
}
