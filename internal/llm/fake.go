package llm

import (
	"context"
	"strings"
	"sync"
)

// FakeRule answers any prompt containing Contains.
type FakeRule struct {
	Contains string
	Reply    string
	Err      error
}

// FakeClient returns deterministic replies for offline runs and tests.
// Rules are checked in order; the first match wins, otherwise Default.
type FakeClient struct {
	Rules   []FakeRule
	Default string

	mu    sync.Mutex
	calls []string
}

func NewFakeClient(def string, rules ...FakeRule) *FakeClient {
	return &FakeClient{Default: def, Rules: rules}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.calls = append(f.calls, prompt)
	f.mu.Unlock()
	for _, r := range f.Rules {
		if strings.Contains(prompt, r.Contains) {
			return r.Reply, r.Err
		}
	}
	return f.Default, nil
}

// Calls returns a copy of every prompt seen so far.
func (f *FakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsContaining counts prompts that include substr.
func (f *FakeClient) CallsContaining(substr string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}
