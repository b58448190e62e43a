// Package heuristic runs the external string finder script shipped under
// DOOP_HOME and returns the strings it reports.
package heuristic

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"jniscan/internal/toolrun"
)

// ErrNoScript is returned when no script path is configured.
var ErrNoScript = errors.New("string finder script not configured, set DOOP_HOME")

// Finder invokes "<python> <script> <lib>".
type Finder struct {
	Runner toolrun.Runner
	Python string
	Script string
}

// Strings returns the script output, one string per line. The position of a
// line in the output is used as its offset.
func (f Finder) Strings(ctx context.Context, lib string) ([]string, error) {
	if f.Script == "" {
		return nil, ErrNoScript
	}
	lines, err := f.Runner.Run(ctx, f.Python, f.Script, lib)
	if err != nil {
		return nil, fmt.Errorf("heuristic strings of %s: %w", lib, err)
	}
	return lines, nil
}

// Collect is Strings with failures logged and turned into an empty result.
func (f Finder) Collect(ctx context.Context, lib string, logger *log.Logger) []string {
	lines, err := f.Strings(ctx, lib)
	if err != nil {
		logger.Warn("Could not run heuristic string finder", "lib", lib, "err", err)
		return nil
	}
	logger.Debug("Heuristic strings", "lib", lib, "count", len(lines))
	return lines
}
