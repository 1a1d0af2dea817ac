package interview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prep-piper/piper/internal/observability"
	"github.com/rs/zerolog"
)

// minAnswerLen is the shortest answer that consumes a question slot
const minAnswerLen = 3

// EngineConfig configures the interview engine
type EngineConfig struct {
	Provider     Provider
	MaxQuestions int
	MaxRetries   int
	Logger       zerolog.Logger
}

// Engine implements Interviewer on top of an LLM provider
type Engine struct {
	provider     Provider
	maxQuestions int
	maxRetries   int
	logger       zerolog.Logger
}

// NewEngine creates an interview engine
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = 5
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Engine{
		provider:     cfg.Provider,
		maxQuestions: cfg.MaxQuestions,
		maxRetries:   cfg.MaxRetries,
		logger:       cfg.Logger,
	}, nil
}

// MaxQuestions returns the configured answer-cycle limit
func (e *Engine) MaxQuestions() int {
	return e.maxQuestions
}

// OpeningQuestion builds the templated first question
func (e *Engine) OpeningQuestion(profile Profile) string {
	return openingQuestion(profile)
}

// ProcessAnswer evaluates one answer. Short answers re-prompt without
// consuming a question slot; the last slot produces the completion signal.
func (e *Engine) ProcessAnswer(ctx context.Context, req Request) (Outcome, error) {
	answer := strings.TrimSpace(req.Answer)
	if len(answer) < minAnswerLen {
		e.logger.Debug().
			Str("session_id", req.SessionID).
			Msg("Answer too short, re-prompting")
		return Outcome{NextQuestion: shortAnswerPrompt, Counted: false}, nil
	}

	profile := req.Profile
	if profile.MaxQuestions <= 0 {
		profile.MaxQuestions = e.maxQuestions
	}

	answered := req.QuestionsAnswered + 1
	if answered >= profile.MaxQuestions {
		e.logger.Info().
			Str("session_id", req.SessionID).
			Int("answered", answered).
			Msg("Question limit reached, completing interview")
		return Outcome{
			Completed: true,
			Counted:   true,
			Summary:   completionSummary(profile, answered),
		}, nil
	}

	question, err := e.generate(ctx, req, profile, answered+1)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{NextQuestion: question, Counted: true}, nil
}

// generate calls the provider with bounded retry
func (e *Engine) generate(ctx context.Context, req Request, profile Profile, questionNumber int) (string, error) {
	system := systemPrompt(profile, req.Transcript, questionNumber)

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		start := time.Now()
		text, err := e.provider.Generate(ctx, system, "Generate the next interview question.")
		if err != nil {
			lastErr = err
			observability.RecordCollaboratorError("interviewer")
			e.logger.Warn().
				Str("session_id", req.SessionID).
				Str("provider", e.provider.Name()).
				Int("attempt", attempt+1).
				Err(err).
				Msg("Question generation failed")

			if ctx.Err() != nil {
				break
			}
			continue
		}

		observability.RecordGeneration(time.Since(start))

		text = strings.TrimSpace(text)
		if text == "" {
			return fallbackQuestion, nil
		}
		return text, nil
	}

	return "", fmt.Errorf("question generation failed after %d attempts: %w", e.maxRetries+1, lastErr)
}
