// Package pool implements the shared waiting pool of screened candidates:
// a bounded, energy-ordered buffer in a multi-writer directory, plus the
// rename-based claim protocol slow workers race over.
//
// The mutation discipline is strict: entries are constructed under a temp
// name and published by a single rename, claimed by a single rename, or
// removed entirely. A visible entry is never edited in place, so no reader
// ever observes a partial entry.
package pool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aristath/relaxpool/internal/fsatomic"
	"github.com/aristath/relaxpool/internal/task"
)

// File names inside a pool entry directory.
const (
	PayloadFile = "POSCAR"    // Screened structure
	StateFile   = "SAVE"      // Optional auxiliary state blob
	MetaFile    = "meta.json" // Task metadata, carries the ranking key
)

// Entry is one visible pool member.
type Entry struct {
	ID     string
	Energy float64 // Ranking key; task.WorstEnergy when metadata is unreadable
	Path   string
}

// Candidate is a screened task about to be inserted.
type Candidate struct {
	Meta    task.Meta
	Payload []byte
	State   []byte // nil when the source had no auxiliary blob
}

// Pool is a handle on the shared waiting-pool directory.
type Pool struct {
	dir string
}

// New binds a pool handle to dir.
func New(dir string) *Pool {
	return &Pool{dir: dir}
}

// Dir returns the pool directory.
func (p *Pool) Dir() string { return p.dir }

// List enumerates the visible pool members with their ranking keys.
// Temp-prefixed names and stray plain files are skipped; members with
// missing or unparsable metadata rank as worst.
func (p *Pool) List() ([]Entry, error) {
	dirents, err := os.ReadDir(p.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading pool: %w", err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if !d.IsDir() || strings.HasPrefix(d.Name(), fsatomic.TempPrefix) {
			continue
		}
		path := filepath.Join(p.dir, d.Name())
		entries = append(entries, Entry{
			ID:     d.Name(),
			Energy: task.ReadEnergy(filepath.Join(path, MetaFile)),
			Path:   path,
		})
	}
	return entries, nil
}

// Insert adds c to the pool, enforcing the soft capacity cap. It returns
// whether the candidate was inserted and, if an eviction made room, the ID of
// the evicted member. A false return with nil error means the candidate was
// dropped: the pool was full of strictly better entries.
func (p *Pool) Insert(c Candidate, capacity int) (inserted bool, evicted string, err error) {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return false, "", fmt.Errorf("creating pool: %w", err)
	}

	ok, evicted, err := p.makeRoom(capacity, c.Meta.EnergyScreen)
	if err != nil {
		return false, "", err
	}
	if !ok {
		return false, "", nil
	}

	// Fully materialize under a temp name, publish with one rename.
	id := c.Meta.TaskID
	staging := filepath.Join(p.dir, fsatomic.TempPrefix+id)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return false, "", fmt.Errorf("staging %s: %w", id, err)
	}
	defer os.RemoveAll(staging) // No-op after a successful publish

	if err := fsatomic.WriteFile(filepath.Join(staging, PayloadFile), c.Payload); err != nil {
		return false, "", err
	}
	if c.State != nil {
		if err := fsatomic.WriteFile(filepath.Join(staging, StateFile), c.State); err != nil {
			return false, "", err
		}
	}
	if err := fsatomic.WriteJSON(filepath.Join(staging, MetaFile), c.Meta); err != nil {
		return false, "", err
	}

	if err := fsatomic.Move(staging, filepath.Join(p.dir, id)); err != nil {
		return false, "", fmt.Errorf("publishing %s: %w", id, err)
	}
	return true, evicted, nil
}

// makeRoom decides whether a candidate with the given energy may enter a pool
// capped at capacity, evicting the worst member if that is what it takes.
// When an eviction attempt fails (a competitor claimed or removed the target
// first), the pool is re-enumerated once and the decision is re-made on the
// current population instead of failing the insert.
func (p *Pool) makeRoom(capacity int, energy float64) (ok bool, evicted string, err error) {
	entries, err := p.List()
	if err != nil {
		return false, "", err
	}
	if len(entries) < capacity {
		return true, "", nil
	}

	worst := entries[0]
	for _, e := range entries[1:] {
		if e.Energy > worst.Energy {
			worst = e
		}
	}
	if energy >= worst.Energy {
		return false, "", nil
	}

	if err := os.RemoveAll(worst.Path); err != nil {
		// Lost a race on the eviction target. Recount and re-decide.
		entries, err := p.List()
		if err != nil {
			return false, "", err
		}
		return len(entries) < capacity, "", nil
	}
	return true, worst.ID, nil
}

// Len returns the current visible population.
func (p *Pool) Len() (int, error) {
	entries, err := p.List()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// sortByEnergy orders entries ascending by ranking key, ties broken by ID so
// equal-energy claims are serviced in arrival order (IDs are time-prefixed).
func sortByEnergy(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Energy != entries[j].Energy {
			return entries[i].Energy < entries[j].Energy
		}
		return entries[i].ID < entries[j].ID
	})
}
