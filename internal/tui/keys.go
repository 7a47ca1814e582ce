package tui

// Keybinding constants
const (
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyRefresh  = "r"
	KeySettings = "s"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView() string {
	return StyleHelp.Render("j/k: scroll reports | r: refresh | s: settings | q: quit")
}
