// Package toolrun runs the external binutils-style tools the scanner depends on
// and hands their output back as lines of text.
package toolrun

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// Runner executes an external command and returns its standard output split
// into lines. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]string, error)
}

// ToolError reports a failed tool invocation: a missing binary, a non-zero
// exit status or an I/O error while reading its output.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("run %s %s: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + firstLine(e.Stderr)
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// Exec is the Runner backed by os/exec.
type Exec struct {
	Log *log.Logger
}

// Run starts name with args, waits for it to exit and returns every line it
// wrote to stdout. Stdout is returned alongside a *ToolError when the tool
// exits non-zero so callers may still salvage partial output.
func (x Exec) Run(ctx context.Context, name string, args ...string) ([]string, error) {
	if x.Log != nil {
		x.Log.Debug("Running external command", "cmd", name, "args", strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	lines, scanErr := SplitLines(stdout.Bytes())
	if runErr != nil {
		return lines, &ToolError{Tool: name, Args: args, Stderr: stderr.String(), Err: runErr}
	}
	if scanErr != nil {
		return lines, &ToolError{Tool: name, Args: args, Err: scanErr}
	}
	return lines, nil
}

// SplitLines splits tool output into lines without trailing newlines.
func SplitLines(out []byte) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	return lines, sc.Err()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
