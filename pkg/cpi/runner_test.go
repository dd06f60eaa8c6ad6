//go:build unix

package cpi

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeScript writes an executable shell script into a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cpi")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestExecRunnerCapturesOutput(t *testing.T) {
	script := writeScript(t, `cat
echo "to stderr" >&2
exit 3
`)

	out, err := ExecRunner{}.Run(context.Background(), Command{
		Path:  script,
		Env:   []string{"PATH=" + DefaultPath},
		Stdin: []byte(`{"method":"ping"}`),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if string(out.Stdout) != `{"method":"ping"}` {
		t.Errorf("Stdout = %q", out.Stdout)
	}
	if strings.TrimSpace(string(out.Stderr)) != "to stderr" {
		t.Errorf("Stderr = %q", out.Stderr)
	}
	if out.ExitStatus != 3 {
		t.Errorf("ExitStatus = %d, want 3", out.ExitStatus)
	}
}

func TestExecRunnerEnvironmentIsExact(t *testing.T) {
	t.Setenv("CPI_TEST_LEAK", "leaked")

	script := writeScript(t, "/usr/bin/env\n")

	out, err := ExecRunner{}.Run(context.Background(), Command{
		Path: script,
		Env:  []string{"PATH=" + DefaultPath, "TMPDIR=/some/tmp"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, line := range strings.Split(strings.TrimSpace(string(out.Stdout)), "\n") {
		switch {
		case line == "PATH="+DefaultPath, line == "TMPDIR=/some/tmp":
		case strings.HasPrefix(line, "PWD="), strings.HasPrefix(line, "SHLVL="), strings.HasPrefix(line, "_="):
			// set by the shell itself
		default:
			t.Errorf("unexpected variable in cpi environment: %s", line)
		}
	}
}

func TestExecRunnerNilEnvDoesNotInherit(t *testing.T) {
	t.Setenv("CPI_TEST_LEAK", "leaked")

	script := writeScript(t, "/usr/bin/env\n")

	out, err := ExecRunner{}.Run(context.Background(), Command{Path: script})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Contains(string(out.Stdout), "CPI_TEST_LEAK") {
		t.Errorf("environment leaked into cpi: %s", out.Stdout)
	}
}

func TestExecRunnerStartFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-binary")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0x02}, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := (ExecRunner{}).Run(context.Background(), Command{Path: path}); err == nil {
		t.Error("expected error when the file cannot be executed")
	}
}
