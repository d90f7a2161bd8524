package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Output is the captured result of a device command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes device commands. A non-zero exit is reported through
// Output.ExitCode with a nil error; errors are reserved for commands that
// could not run or were cut short by ctx.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (Output, error)
}

// ExecRunner runs commands as subprocesses.
type ExecRunner struct{}

// Run executes args[0] with the remaining arguments in dir.
func (ExecRunner) Run(ctx context.Context, dir string, args ...string) (Output, error) {
	if len(args) == 0 {
		return Output{}, fmt.Errorf("empty command")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctxErr := ctx.Err(); ctxErr != nil {
		out.ExitCode = -1
		return out, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("run %s: %w", args[0], err)
	}
	return out, nil
}
