package engine

import (
	"context"
	"encoding/json"
	"fmt"
)

// Config describes the external relaxer invocation.
type Config struct {
	Command string   // Relaxer binary
	Args    []string // Extra args prepended before the per-call flags
	Model   string   // Model name forwarded as --model
	Device  string   // "cpu" or "cuda", forwarded as --device
	WorkDir string   // Working directory for the subprocess; "" = inherit
}

// CommandEngine runs relaxations by shelling out to an external relaxer.
// The structure is fed on stdin; the relaxer answers with one JSON object on
// stdout: {"energy": <float>, "structure": "<final structure>"}.
type CommandEngine struct {
	cfg Config
	pm  *ProcessManager
}

// NewCommandEngine creates a CommandEngine. The ProcessManager is optional;
// when nil, relaxer subprocesses are not tracked for shutdown cleanup.
func NewCommandEngine(cfg Config, pm *ProcessManager) (*CommandEngine, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("engine command not configured")
	}
	return &CommandEngine{cfg: cfg, pm: pm}, nil
}

// relaxerOutput is the relaxer's stdout contract.
type relaxerOutput struct {
	Energy    *float64 `json:"energy"`
	Structure string   `json:"structure"`
}

// Relax invokes the relaxer once. Errors carry the relaxer's stderr when the
// subprocess failed, or a description of a malformed response.
func (e *CommandEngine) Relax(ctx context.Context, structure []byte, opts Options) (Result, error) {
	args := e.buildArgs(opts)
	cmd := newCommand(ctx, e.cfg.Command, args...)
	if e.cfg.WorkDir != "" {
		cmd.Dir = e.cfg.WorkDir
	}

	stdout, _, err := runCommand(cmd, structure, e.pm)
	if err != nil {
		return Result{}, fmt.Errorf("relaxer: %w", err)
	}

	out, err := parseOutput(stdout)
	if err != nil {
		return Result{}, err
	}
	return Result{Energy: *out.Energy, Structure: []byte(out.Structure)}, nil
}

// buildArgs assembles the relaxer command line from the static config and the
// per-call stage options.
func (e *CommandEngine) buildArgs(opts Options) []string {
	args := append([]string{}, e.cfg.Args...)
	if e.cfg.Model != "" {
		args = append(args, "--model", e.cfg.Model)
	}
	if e.cfg.Device != "" {
		args = append(args, "--device", e.cfg.Device)
	}
	args = append(args,
		"--fmax", fmt.Sprintf("%g", opts.Fmax),
		"--max-steps", fmt.Sprintf("%d", opts.MaxSteps),
	)
	return args
}

// parseOutput validates the relaxer's JSON response.
func parseOutput(stdout []byte) (relaxerOutput, error) {
	var out relaxerOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return out, fmt.Errorf("parsing relaxer output: %w", err)
	}
	if out.Energy == nil {
		return out, fmt.Errorf("relaxer output missing energy")
	}
	if out.Structure == "" {
		return out, fmt.Errorf("relaxer output missing structure")
	}
	return out, nil
}
