package toolrun

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNotFound is returned by Fake for commands it has no fixture for.
var ErrNotFound = errors.New("executable file not found")

// Fake is a Runner that replays canned output keyed by the full command line
// ("name arg1 arg2 ..."). It records every invocation.
type Fake struct {
	mu      sync.Mutex
	Outputs map[string][]string
	Errors  map[string]error
	Calls   []string
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Outputs: make(map[string][]string),
		Errors:  make(map[string]error),
	}
}

// Set registers the output for a command line.
func (f *Fake) Set(cmdline string, out string) *Fake {
	lines, _ := SplitLines([]byte(out))
	f.mu.Lock()
	f.Outputs[cmdline] = lines
	f.mu.Unlock()
	return f
}

// Fail makes a command line fail with err.
func (f *Fake) Fail(cmdline string, err error) *Fake {
	f.mu.Lock()
	f.Errors[cmdline] = err
	f.mu.Unlock()
	return f
}

func (f *Fake) Run(_ context.Context, name string, args ...string) ([]string, error) {
	key := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, key)

	if err, ok := f.Errors[key]; ok {
		return nil, &ToolError{Tool: name, Args: args, Err: err}
	}
	if out, ok := f.Outputs[key]; ok {
		return append([]string(nil), out...), nil
	}
	return nil, &ToolError{Tool: name, Args: args, Err: ErrNotFound}
}

// Called reports whether cmdline was run at least once.
func (f *Fake) Called(cmdline string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Calls {
		if c == cmdline {
			return true
		}
	}
	return false
}
