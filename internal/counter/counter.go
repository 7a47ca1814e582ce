// Package counter implements crash-safe monotonic counters shared across
// worker processes. Each counter is a small file guarded by an
// exclusive-create lock marker; contenders retry with a short constant
// backoff and eventually give up, because the counters are diagnostic only
// and must never block the pipeline.
package counter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/relaxpool/internal/fsatomic"
)

// ErrLockHeld is returned when the lock marker could not be acquired within
// the retry budget. Callers treat it as a missed diagnostic tick, not a failure.
var ErrLockHeld = errors.New("counter lock held")

// Service manages the counters in one directory.
type Service struct {
	dir      string
	interval time.Duration // Delay between lock attempts
	retries  uint64        // Lock attempts before giving up
}

// New creates a counter service over dir with the default retry budget
// of 50 attempts, 10ms apart.
func New(dir string) *Service {
	return &Service{dir: dir, interval: 10 * time.Millisecond, retries: 50}
}

// NewWithBudget creates a service with an explicit retry budget. Used by
// tests to keep lock-starvation cases fast.
func NewWithBudget(dir string, interval time.Duration, retries uint64) *Service {
	return &Service{dir: dir, interval: interval, retries: retries}
}

// Increment durably adds one to the named counter. Increments are serialized
// by the lock marker, so no concurrent update is lost. Returns ErrLockHeld if
// the marker stayed held for the whole retry budget.
func (s *Service) Increment(name string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating counter directory: %w", err)
	}

	lock := filepath.Join(s.dir, name+".lock")

	acquire := func() error {
		f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			if os.IsExist(err) {
				return ErrLockHeld // Retryable: someone else holds the marker
			}
			return backoff.Permanent(fmt.Errorf("creating lock marker: %w", err))
		}
		return f.Close()
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.interval), s.retries)
	if err := backoff.Retry(acquire, policy); err != nil {
		return err
	}
	// Marker release is unconditional, error path included.
	defer fsatomic.Remove(lock)

	value := s.Read(name)
	path := filepath.Join(s.dir, name)
	if err := fsatomic.WriteFile(path, []byte(strconv.FormatUint(value+1, 10)+"\n")); err != nil {
		return fmt.Errorf("writing counter %s: %w", name, err)
	}
	return nil
}

// Read returns the current value of the named counter. Missing or corrupt
// content reads as zero.
func (s *Service) Read(name string) uint64 {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
