// Package interview implements the question-generation collaborator: an
// engine that turns candidate answers into follow-up questions or a
// completion signal, backed by a pluggable LLM provider.
package interview

import "context"

// Profile is the interview configuration captured at session start
type Profile struct {
	TechStack    string
	Position     string
	Difficulty   string
	MaxQuestions int
}

// Turn is one committed conversation line, oldest first
type Turn struct {
	Speaker string // interviewer or candidate
	Text    string
}

// Request carries one candidate answer plus its full transcript context
type Request struct {
	SessionID string
	Profile   Profile
	// Transcript is the committed conversation including the answer
	Transcript []Turn
	// Answer is the final transcript text being processed
	Answer string
	// QuestionsAnswered counts completed answer cycles before this answer
	QuestionsAnswered int
}

// Outcome is the engine's verdict on one answer
type Outcome struct {
	// NextQuestion is set unless Completed
	NextQuestion string
	// Completed signals the interview is over; Summary is the closing message
	Completed bool
	Summary   string
	// Counted reports whether this answer consumed a question slot. Short
	// answers are re-prompted without advancing the counter.
	Counted bool
}

// Interviewer is the question-generation capability consumed by the core
type Interviewer interface {
	// OpeningQuestion builds the templated first question; no provider call
	OpeningQuestion(profile Profile) string
	// ProcessAnswer evaluates an answer and produces the next turn
	ProcessAnswer(ctx context.Context, req Request) (Outcome, error)
}

// Provider generates question text from prompts
type Provider interface {
	Name() string
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
