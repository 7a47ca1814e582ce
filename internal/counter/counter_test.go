package counter

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// TestIncrement_Basic verifies increments persist across service instances.
func TestIncrement_Basic(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir)

	for i := 0; i < 3; i++ {
		if err := svc.Increment("fast_count"); err != nil {
			t.Fatalf("Increment %d: %v", i, err)
		}
	}
	if got := svc.Read("fast_count"); got != 3 {
		t.Errorf("Read = %d, want 3", got)
	}

	// A fresh service over the same directory sees the durable value.
	if got := New(dir).Read("fast_count"); got != 3 {
		t.Errorf("fresh Read = %d, want 3", got)
	}
}

// TestIncrement_NoLostUpdates verifies the linearizability property: N
// concurrent incrementers produce exactly N increments.
func TestIncrement_NoLostUpdates(t *testing.T) {
	dir := t.TempDir()

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each goroutine gets its own service, like separate processes.
			svc := NewWithBudget(dir, time.Millisecond, 5000)
			for i := 0; i < perWorker; i++ {
				if err := svc.Increment("slow_count"); err != nil {
					t.Errorf("Increment: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := New(dir).Read("slow_count"); got != workers*perWorker {
		t.Errorf("Read = %d, want %d", got, workers*perWorker)
	}
}

// TestIncrement_GivesUpOnStuckLock verifies the bounded-retry contract: a
// marker that never goes away yields ErrLockHeld, and the counter is untouched.
func TestIncrement_GivesUpOnStuckLock(t *testing.T) {
	dir := t.TempDir()
	svc := NewWithBudget(dir, time.Millisecond, 5)

	// Simulate a crashed holder: marker exists, nobody will remove it.
	if err := os.WriteFile(filepath.Join(dir, "fast_count.lock"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	err := svc.Increment("fast_count")
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
	if got := svc.Read("fast_count"); got != 0 {
		t.Errorf("counter modified despite held lock: %d", got)
	}
}

// TestIncrement_ReleasesLock verifies no marker survives a successful increment.
func TestIncrement_ReleasesLock(t *testing.T) {
	dir := t.TempDir()
	if err := New(dir).Increment("fast_count"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "fast_count.lock")); !os.IsNotExist(err) {
		t.Error("lock marker left behind")
	}
}

// TestRead_CorruptReadsAsZero verifies garbage content is treated as zero,
// and the next increment rebuilds from there.
func TestRead_CorruptReadsAsZero(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir)

	if err := os.WriteFile(filepath.Join(dir, "fast_count"), []byte("not a number"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := svc.Read("fast_count"); got != 0 {
		t.Errorf("Read = %d, want 0", got)
	}

	if err := svc.Increment("fast_count"); err != nil {
		t.Fatal(err)
	}
	if got := svc.Read("fast_count"); got != 1 {
		t.Errorf("Read after increment = %d, want 1", got)
	}
}
