// Package layout maps a pipeline root directory to the shared namespaces the
// workers and the controller exchange files through.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
)

// Root is the configured pipeline root. All shared namespaces live under it.
type Root string

// Fast returns the handshake directory shared with the controller.
func (r Root) Fast() string { return filepath.Join(string(r), "fast") }

// Pool returns the waiting pool of screened candidates.
func (r Root) Pool() string { return filepath.Join(string(r), "waiting_pool") }

// Work returns the namespace claimed entries are moved into.
func (r Root) Work() string { return filepath.Join(string(r), "waiting_work") }

// Outbox returns the refined-result namespace read by the controller.
func (r Root) Outbox() string { return filepath.Join(string(r), "refine_outbox") }

// Reports returns the per-task status report namespace.
func (r Root) Reports() string { return filepath.Join(string(r), "reports") }

// Counters returns the diagnostic counter directory.
func (r Root) Counters() string { return filepath.Join(string(r), "counters") }

// EnsureAll creates every namespace directory that does not yet exist.
func (r Root) EnsureAll() error {
	for _, dir := range []string{
		r.Fast(), r.Pool(), r.Work(), r.Outbox(), r.Reports(), r.Counters(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
