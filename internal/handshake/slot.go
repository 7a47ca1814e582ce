// Package handshake implements the per-slot signal-file protocol between the
// controller and a fast worker. The controller stages POSCAR{k} and an
// optional SAVE{k}, then touches .go_{k}; the worker answers by touching
// .done_{k} and removing .go_{k}, in that order, whatever the job outcome.
package handshake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/relaxpool/internal/fsatomic"
)

// Slot is one fixed-identity handshake channel.
type Slot struct {
	dir   string
	index int
}

// NewSlot binds slot k under the handshake directory.
func NewSlot(dir string, k int) *Slot {
	return &Slot{dir: dir, index: k}
}

// Index returns the slot number.
func (s *Slot) Index() int { return s.index }

func (s *Slot) structurePath() string { return filepath.Join(s.dir, fmt.Sprintf("POSCAR%d", s.index)) }
func (s *Slot) statePath() string     { return filepath.Join(s.dir, fmt.Sprintf("SAVE%d", s.index)) }
func (s *Slot) goPath() string        { return filepath.Join(s.dir, fmt.Sprintf(".go_%d", s.index)) }
func (s *Slot) donePath() string      { return filepath.Join(s.dir, fmt.Sprintf(".done_%d", s.index)) }

// Pending reports whether the controller has posted a go-signal.
func (s *Slot) Pending() bool {
	_, err := os.Stat(s.goPath())
	return err == nil
}

// ReadStructure reads the slot's input structure. The go-signal may appear a
// beat before the structure write settles, so a brief read race with the
// controller is tolerated with bounded retries.
func (s *Slot) ReadStructure(ctx context.Context) ([]byte, error) {
	var data []byte

	read := func() error {
		d, err := os.ReadFile(s.structurePath())
		if err != nil {
			return err
		}
		if len(d) == 0 {
			return fmt.Errorf("structure file %s is empty", s.structurePath())
		}
		data = d
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(20*time.Millisecond), 10),
		ctx,
	)
	if err := backoff.Retry(read, policy); err != nil {
		return nil, fmt.Errorf("reading slot %d structure: %w", s.index, err)
	}
	return data, nil
}

// ReadState reads the slot's optional auxiliary state blob. A missing file
// returns (nil, nil).
func (s *Slot) ReadState() ([]byte, error) {
	data, err := os.ReadFile(s.statePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading slot %d state: %w", s.index, err)
	}
	return data, nil
}

// Complete releases the slot back to the controller: the done-signal is
// posted before the go-signal is cleared, so the slot is never seen as idle
// while the worker is still inside a job, and never reused before done is
// visible. Called unconditionally after every job, success or failure.
func (s *Slot) Complete() error {
	if err := fsatomic.Touch(s.donePath()); err != nil {
		return fmt.Errorf("posting done for slot %d: %w", s.index, err)
	}
	if err := fsatomic.Remove(s.goPath()); err != nil {
		return fmt.Errorf("clearing go for slot %d: %w", s.index, err)
	}
	return nil
}

// Request performs the controller side of the handshake: stage the inputs,
// then post the go-signal. state may be nil. Used by tests and by any
// in-process controller.
func (s *Slot) Request(structure, state []byte) error {
	if err := fsatomic.WriteFile(s.structurePath(), structure); err != nil {
		return fmt.Errorf("staging slot %d structure: %w", s.index, err)
	}
	if state != nil {
		if err := fsatomic.WriteFile(s.statePath(), state); err != nil {
			return fmt.Errorf("staging slot %d state: %w", s.index, err)
		}
	}
	return fsatomic.Touch(s.goPath())
}

// Done reports whether the worker has posted its done-signal.
// Controller-side helper, paired with ClearDone before slot reuse.
func (s *Slot) Done() bool {
	_, err := os.Stat(s.donePath())
	return err == nil
}

// ClearDone removes the done-signal so the slot can be scheduled again.
func (s *Slot) ClearDone() error {
	return fsatomic.Remove(s.donePath())
}
