package funnel

import (
	"context"
	"encoding/json"
	"sync"
)

// fakeCaller replays canned JSON answers and records prompts, so stage tests
// run without a model.
type fakeCaller struct {
	mu      sync.Mutex
	answers []string
	err     error
	calls   int
	prompts []string
}

func (f *fakeCaller) CallJSON(_ context.Context, _, user, _ string, out any) error {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.prompts = append(f.prompts, user)
	f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	answer := f.answers[len(f.answers)-1]
	if idx < len(f.answers) {
		answer = f.answers[idx]
	}
	return json.Unmarshal([]byte(answer), out)
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
