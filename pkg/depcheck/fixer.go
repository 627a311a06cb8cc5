package depcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// DefaultFixCommand adds the package named by $1 as a runtime dependency.
const DefaultFixCommand = `yarn add "$1"`

// ErrFixFailed is returned when the fix command exits nonzero.
var ErrFixFailed = errors.New("fix command failed")

// ShellFixer runs a shell snippet through an embedded POSIX interpreter in
// the package directory, with the package name bound to $1.
type ShellFixer struct {
	prog   *syntax.File
	stdout io.Writer
	stderr io.Writer
	env    []string
}

// NewShellFixer parses command once. Empty uses DefaultFixCommand.
func NewShellFixer(command string, stdout, stderr io.Writer) (*ShellFixer, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultFixCommand
	}

	prog, err := syntax.NewParser().Parse(strings.NewReader(command), "fix")
	if err != nil {
		return nil, fmt.Errorf("parse fix command: %w", err)
	}

	if stdout == nil {
		stdout = io.Discard
	}

	if stderr == nil {
		stderr = io.Discard
	}

	return &ShellFixer{prog: prog, stdout: stdout, stderr: stderr, env: os.Environ()}, nil
}

// Add runs the fix command for name in dir.
func (f *ShellFixer) Add(ctx context.Context, dir, name string) error {
	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(f.env...)),
		interp.StdIO(nil, f.stdout, f.stderr),
		interp.Params("--", name),
	)
	if err != nil {
		return fmt.Errorf("create interpreter: %w", err)
	}

	err = runner.Run(ctx, f.prog)
	if err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return fmt.Errorf("%w: exit status %d", ErrFixFailed, status)
		}

		return fmt.Errorf("run fix command: %w", err)
	}

	return nil
}
