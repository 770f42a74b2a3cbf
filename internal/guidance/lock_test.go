package guidance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-guidance/internal/guidance"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	locker := guidance.NewLocalLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "stu-1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		release, err := locker.Lock(ctx, "stu-1")
		if err != nil {
			t.Errorf("second Lock() error = %v", err)
			return
		}
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock() acquired while first was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	unlock() // second call is a no-op

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock() not acquired after unlock")
	}
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	locker := guidance.NewLocalLocker()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlockA, err := locker.Lock(ctx, "stu-1")
	if err != nil {
		t.Fatalf("Lock(stu-1) error = %v", err)
	}
	defer unlockA()

	unlockB, err := locker.Lock(ctx, "stu-2")
	if err != nil {
		t.Fatalf("Lock(stu-2) error = %v", err)
	}
	unlockB()
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	locker := guidance.NewLocalLocker()

	unlock, err := locker.Lock(context.Background(), "stu-1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "stu-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Lock() error = %v, want DeadlineExceeded", err)
	}
}
