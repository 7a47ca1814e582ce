package fsatomic

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestWriteFile_CreatesAndReplaces verifies a fresh write and an overwrite
// both land the full content.
func TestWriteFile_CreatesAndReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "value")

	if err := WriteFile(path, []byte("first")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "first" {
		t.Errorf("content = %q, want %q", got, "first")
	}

	if err := WriteFile(path, []byte("second")); err != nil {
		t.Fatalf("WriteFile replace: %v", err)
	}
	got, _ = os.ReadFile(path)
	if string(got) != "second" {
		t.Errorf("content after replace = %q, want %q", got, "second")
	}
}

// TestWriteFile_CreatesParentDirs verifies missing parent directories are created.
func TestWriteFile_CreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "value")

	if err := WriteFile(path, []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %v", err)
	}
}

// TestWriteFile_LeavesNoTempFiles verifies the temp sibling is gone after a
// successful write.
func TestWriteFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFile(filepath.Join(dir, "value"), []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "value" {
			t.Errorf("unexpected leftover %q", e.Name())
		}
	}
}

// TestWriteJSON_RoundTrip verifies JSON output is parseable and newline-terminated.
func TestWriteJSON_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")

	in := map[string]any{"task_id": "t1", "energy_screen": -1.25}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if data[len(data)-1] != '\n' {
		t.Error("expected trailing newline")
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["task_id"] != "t1" {
		t.Errorf("task_id = %v, want t1", out["task_id"])
	}
}

// TestCopyFile_MissingSourceIsNoOp verifies the optional-blob contract.
func TestCopyFile_MissingSourceIsNoOp(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst")

	if err := CopyFile(filepath.Join(dir, "does-not-exist"), dst); err != nil {
		t.Fatalf("CopyFile on missing src: %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("dst should not have been created")
	}
}

// TestCopyFile_CopiesContent verifies src content lands in dst.
func TestCopyFile_CopiesContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "sub", "dst")

	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("seed src: %v", err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "payload" {
		t.Errorf("dst = %q, want %q", got, "payload")
	}
}

// TestMove_FailsWhenSourceGone verifies the lost-race behavior claims rely on.
func TestMove_FailsWhenSourceGone(t *testing.T) {
	dir := t.TempDir()
	if err := Move(filepath.Join(dir, "gone"), filepath.Join(dir, "dst")); err == nil {
		t.Error("expected error moving missing source")
	}
}

// TestMove_RelocatesDirectory verifies directory moves keep contents.
func TestMove_RelocatesDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "entry")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "f"), []byte("v"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "claimed")
	if err := Move(src, dst); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("src should be gone")
	}
	got, err := os.ReadFile(filepath.Join(dst, "f"))
	if err != nil || string(got) != "v" {
		t.Errorf("dst contents = %q, %v", got, err)
	}
}

// TestTouchAndRemove verifies signal-file lifecycle, including idempotent removal.
func TestTouchAndRemove(t *testing.T) {
	dir := t.TempDir()
	sig := filepath.Join(dir, ".go_0")

	if err := Touch(sig); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if _, err := os.Stat(sig); err != nil {
		t.Fatalf("signal should exist: %v", err)
	}
	// Touch on an existing file is fine.
	if err := Touch(sig); err != nil {
		t.Fatalf("second Touch: %v", err)
	}

	if err := Remove(sig); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := Remove(sig); err != nil {
		t.Fatalf("Remove of missing file should succeed: %v", err)
	}
}

// TestSweepTemp removes only temp-prefixed names.
func TestSweepTemp(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, TempPrefix+"stray"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, TempPrefix+"staged"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "keep"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := SweepTemp(dir); err != nil {
		t.Fatalf("SweepTemp: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "keep" {
		t.Errorf("expected only %q to survive, got %v", "keep", entries)
	}

	// Missing directory is not an error.
	if err := SweepTemp(filepath.Join(dir, "nope")); err != nil {
		t.Errorf("SweepTemp on missing dir: %v", err)
	}
}
