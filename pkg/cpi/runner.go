package cpi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Command describes one CPI process invocation.
type Command struct {
	// Path is the validated executable. It is run with no arguments.
	Path string

	// Env is the complete environment of the process.
	Env []string

	// Stdin is written to the process and then closed.
	Stdin []byte
}

// Output is everything captured from a finished process.
type Output struct {
	Stdout     []byte
	Stderr     []byte
	ExitStatus int
}

// CommandRunner runs a CPI process to completion.
//
// Implementations that wrap the default runner are where deadlines belong;
// ExecRunner itself blocks until the process exits.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (*Output, error)
}

// ExecRunner runs CPI executables as local child processes.
type ExecRunner struct{}

// Run starts the process, feeds it stdin and waits for it to exit.
// A non-zero exit status is reported in Output and is not an error.
func (ExecRunner) Run(_ context.Context, c Command) (*Output, error) {
	env := c.Env
	if env == nil {
		// a nil Env would inherit the director's environment
		env = []string{}
	}

	var stdout, stderr bytes.Buffer
	cmd := &exec.Cmd{
		Path:   c.Path,
		Args:   []string{c.Path},
		Env:    env,
		Stdin:  bytes.NewReader(c.Stdin),
		Stdout: &stdout,
		Stderr: &stderr,
	}

	err := cmd.Run()
	out := &Output{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitStatus = exitErr.ExitCode()
			return out, nil
		}
		return nil, fmt.Errorf("failed to run cpi %s: %w", c.Path, err)
	}

	out.ExitStatus = cmd.ProcessState.ExitCode()
	return out, nil
}
