package generate

import (
	"context"
	"fmt"
	"sync"
)

// Generator which replays canned responses in order, for tests and dry runs. Once the script is exhausted, the last response repeats.
type ScriptedGenerator struct {
	lk        sync.Mutex
	responses []string
	Requests  []Request
	// returned instead of a response, if set
	Err error
}

var _ Generator = (*ScriptedGenerator)(nil)

func NewScriptedGenerator(responses ...string) *ScriptedGenerator {
	return &ScriptedGenerator{responses: responses}
}

func (g *ScriptedGenerator) Generate(ctx context.Context, req Request) (string, error) {
	g.lk.Lock()
	defer g.lk.Unlock()
	idx := len(g.Requests)
	g.Requests = append(g.Requests, req)
	if g.Err != nil {
		return "", g.Err
	}
	if len(g.responses) == 0 {
		return "", fmt.Errorf("scripted generator has no responses")
	}
	if idx >= len(g.responses) {
		idx = len(g.responses) - 1
	}
	return g.responses[idx], nil
}

func (g *ScriptedGenerator) Calls() int {
	g.lk.Lock()
	defer g.lk.Unlock()
	return len(g.Requests)
}
