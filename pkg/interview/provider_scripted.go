package interview

import (
	"context"
	"sync"
)

// ScriptedProvider serves a fixed question list, for development and
// offline runs where no LLM credentials are configured.
type ScriptedProvider struct {
	mu        sync.Mutex
	questions []string
	next      int
}

var defaultScript = []string{
	"Can you walk me through a project where you used this stack in production?",
	"How do you approach debugging when something fails only under load?",
	"What trade-offs did you consider in your most recent design decision?",
	"How do you keep your skills current with this technology?",
}

// NewScriptedProvider creates a scripted provider. A nil or empty script
// falls back to a built-in question list.
func NewScriptedProvider(questions []string) *ScriptedProvider {
	if len(questions) == 0 {
		questions = defaultScript
	}
	return &ScriptedProvider{questions: questions}
}

// Name returns the provider name
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// Generate returns the next scripted question, cycling when exhausted
func (p *ScriptedProvider) Generate(_ context.Context, _, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	question := p.questions[p.next%len(p.questions)]
	p.next++
	return question, nil
}
