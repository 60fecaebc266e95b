package toolexec

import (
	"context"
	"strings"
	"sync"
)

// Fake is an in-memory Runner. Responses are keyed by the command line
// ("git tag -l v1.0.0"); a key may also be a prefix ending in "*".
type Fake struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []Command
}

type fakeResponse struct {
	res Result
	err error
}

func NewFake() *Fake {
	return &Fake{responses: make(map[string]fakeResponse)}
}

// On registers the result for a command line.
func (f *Fake) On(line string, res Result, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = fakeResponse{res: res, err: err}
	return f
}

func (f *Fake) Run(_ context.Context, c Command) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)

	line := c.String()
	if r, ok := f.responses[line]; ok {
		return r.res, r.err
	}
	best := ""
	for k := range f.responses {
		p, ok := strings.CutSuffix(k, "*")
		if ok && strings.HasPrefix(line, p) && len(p) > len(best) {
			best = k
		}
	}
	if best != "" {
		r := f.responses[best]
		return r.res, r.err
	}
	return Result{}, nil
}

// Calls returns the command lines run so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

// Commands returns the commands run so far, in order.
func (f *Fake) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}
