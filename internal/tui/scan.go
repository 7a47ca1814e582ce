package tui

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aristath/relaxpool/internal/counter"
	"github.com/aristath/relaxpool/internal/layout"
	"github.com/aristath/relaxpool/internal/pool"
	"github.com/aristath/relaxpool/internal/sink"
	"github.com/aristath/relaxpool/internal/task"
)

// Snapshot is one rescan of the pipeline root.
type Snapshot struct {
	Pool      []pool.Entry // Ascending by energy
	FastCount uint64
	SlowCount uint64
	Reports   []sink.Report // Newest first
	Err       error
}

// takeSnapshot rescans the shared namespaces. Like every other reader of the
// pipeline, it only ever observes complete entries.
func takeSnapshot(root layout.Root, maxReports int) Snapshot {
	var snap Snapshot

	entries, err := pool.New(root.Pool()).List()
	if err != nil {
		snap.Err = err
		return snap
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Energy != entries[j].Energy {
			return entries[i].Energy < entries[j].Energy
		}
		return entries[i].ID < entries[j].ID
	})
	snap.Pool = entries

	counters := counter.New(root.Counters())
	snap.FastCount = counters.Read("fast_count")
	snap.SlowCount = counters.Read("slow_count")

	snap.Reports = readReports(root.Reports(), maxReports)
	return snap
}

// readReports loads up to max reports, newest first. Task IDs are
// time-prefixed, so name order is arrival order.
func readReports(dir string, max int) []sink.Report {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		names = append(names, d.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if len(names) > max {
		names = names[:max]
	}

	reports := make([]sink.Report, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var r sink.Report
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports
}

// renderPool formats the pool pane body.
func renderPool(entries []pool.Entry, height int) string {
	if len(entries) == 0 {
		return StyleHelp.Render("(pool empty)")
	}

	var b strings.Builder
	for i, e := range entries {
		if i >= height {
			fmt.Fprintf(&b, "… and %d more\n", len(entries)-i)
			break
		}
		line := fmt.Sprintf("%-32s  E=%.6f", e.ID, e.Energy)
		switch {
		case e.Energy == task.WorstEnergy:
			line = StyleCorrupt.Render(fmt.Sprintf("%-32s  (unreadable metadata)", e.ID))
		case i == 0:
			line = StyleEnergyBest.Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// renderReports formats the report pane body for the viewport.
func renderReports(reports []sink.Report) string {
	if len(reports) == 0 {
		return StyleHelp.Render("(no reports yet)")
	}

	var b strings.Builder
	for _, r := range reports {
		if r.Status == "error" {
			b.WriteString(StyleError.Render(fmt.Sprintf("%-32s  ERROR: %s [%s]", r.TaskID, r.Error, r.WorkerID)))
		} else {
			energy := "?"
			if r.EnergyFinal != nil {
				energy = fmt.Sprintf("%.6f", *r.EnergyFinal)
			}
			fmt.Fprintf(&b, "%-32s  E_final=%s [%s]", r.TaskID, energy, r.WorkerID)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
