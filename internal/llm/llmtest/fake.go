// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/apresai/roleplay/internal/llm"
)

// Rule answers any request whose system or message text contains Match.
type Rule struct {
	Match   string
	Content string
	Err     error
}

// Fake is a thread-safe llm.Client. Rules are checked in order; the first
// match wins. Unmatched requests get Default, or Handler's result if set.
//
//	fake := &llmtest.Fake{
//	    Rules: []llmtest.Rule{
//	        {Match: "general information", Content: `{"title":"Demo"}`},
//	        {Match: "persona types", Err: errors.New("boom")},
//	    },
//	    Default: `{}`,
//	}
type Fake struct {
	Rules   []Rule
	Default string
	Handler func(req llm.Request) (string, error)

	mu    sync.Mutex
	calls []llm.Request
}

func (f *Fake) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	text := promptText(req)
	for _, r := range f.Rules {
		if strings.Contains(text, r.Match) {
			if r.Err != nil {
				return nil, r.Err
			}
			return &llm.Response{Content: r.Content, Model: "fake"}, nil
		}
	}
	if f.Handler != nil {
		content, err := f.Handler(req)
		if err != nil {
			return nil, err
		}
		return &llm.Response{Content: content, Model: "fake"}, nil
	}
	return &llm.Response{Content: f.Default, Model: "fake"}, nil
}

// Calls returns a copy of every request received so far.
func (f *Fake) Calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many requests matched substr.
func (f *Fake) CallCount(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(promptText(c), substr) {
			n++
		}
	}
	return n
}

func promptText(req llm.Request) string {
	var b strings.Builder
	b.WriteString(req.System)
	for _, m := range req.Messages {
		b.WriteString("\n")
		b.WriteString(m.Content)
	}
	return b.String()
}
