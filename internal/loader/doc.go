package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner. Stderr is folded into the error.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// DefaultAntiwordBinary is the converter used for Word 97-2003 files.
const DefaultAntiwordBinary = "antiword"

// DOCLoader converts legacy .doc files with antiword.
type DOCLoader struct {
	Runner CommandRunner
	Binary string
}

// Extract implements Loader.
func (l *DOCLoader) Extract(ctx context.Context, path string) (*Extraction, error) {
	runner := l.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	bin := l.Binary
	if bin == "" {
		bin = DefaultAntiwordBinary
	}

	out, err := runner.Run(ctx, bin, "-w", "0", path)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s not installed: legacy .doc files need it on PATH", bin)
		}
		return nil, fmt.Errorf("%s: %w", bin, err)
	}

	return &Extraction{Text: string(out)}, nil
}
