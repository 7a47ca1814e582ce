package pool

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aristath/relaxpool/internal/fsatomic"
	"github.com/aristath/relaxpool/internal/task"
)

// Claimed is a pool entry a single worker owns exclusively, relocated into
// the private work namespace. Ownership lasts until Remove.
type Claimed struct {
	ID   string
	Path string
}

// Claim transfers the best claimable entry into workDir and returns it.
// Candidates are tried in ascending ranking-key order; a rename that fails
// because a competitor already took the entry is a lost race, skipped
// silently. Returns (nil, nil) when nothing could be claimed; the caller
// is idle and should sleep before retrying.
//
// The rename is the entire mutual exclusion: at most one caller's rename can
// succeed for a given entry, so no two workers ever own the same task.
func (p *Pool) Claim(workDir string) (*Claimed, error) {
	entries, err := p.List()
	if err != nil {
		return nil, err
	}
	sortByEnergy(entries)

	if len(entries) > 0 {
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating work namespace: %w", err)
		}
	}

	for _, e := range entries {
		target := filepath.Join(workDir, e.ID)
		if err := fsatomic.Move(e.Path, target); err != nil {
			continue // Claimed or evicted by someone else
		}
		return &Claimed{ID: e.ID, Path: target}, nil
	}
	return nil, nil
}

// Meta reads the claimed entry's metadata record.
func (c *Claimed) Meta() (task.Meta, error) {
	return task.ReadMeta(filepath.Join(c.Path, MetaFile))
}

// Payload reads the claimed entry's screened structure.
func (c *Claimed) Payload() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(c.Path, PayloadFile))
	if err != nil {
		return nil, fmt.Errorf("reading claim %s payload: %w", c.ID, err)
	}
	return data, nil
}

// StatePath returns the path of the claim's auxiliary blob, which may or may
// not exist; callers pass it to fsatomic.CopyFile, whose missing-source
// no-op matches the blob's optionality.
func (c *Claimed) StatePath() string {
	return filepath.Join(c.Path, StateFile)
}

// Remove deletes the claim directory and everything in it. Called as the
// unconditional last step of job processing; a crash beforehand leaves the
// claim orphaned in the work namespace rather than silently lost.
func (c *Claimed) Remove() error {
	if err := os.RemoveAll(c.Path); err != nil {
		return fmt.Errorf("removing claim %s: %w", c.ID, err)
	}
	return nil
}
