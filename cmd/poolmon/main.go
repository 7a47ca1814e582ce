// Command poolmon is the operator console for a running pipeline: live pool
// population and energies, counters, and the latest reports, with a settings
// overlay for editing the shared configuration.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/relaxpool/internal/config"
	"github.com/aristath/relaxpool/internal/layout"
	"github.com/aristath/relaxpool/internal/tui"
)

func main() {
	rootFlag := flag.String("root", "", "pipeline root directory (overrides config)")
	flag.Parse()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *rootFlag != "" {
		cfg.Root = *rootFlag
	}

	globalPath, projectPath, err := config.DefaultPaths()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	model := tui.New(layout.Root(cfg.Root), cfg, globalPath, projectPath)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
