package interview

import (
	"fmt"
	"strings"
)

// recentTurns bounds how much conversation is interpolated into the prompt
const recentTurns = 4

// shortAnswerPrompt re-engages a candidate whose answer was too short to score
const shortAnswerPrompt = "I'd like to hear more from you. Please share your thoughts, or ask for clarification if anything was unclear."

// fallbackQuestion is used when the provider returns empty output
const fallbackQuestion = "Could you tell me more about your experience with the technologies we discussed?"

// openingQuestion builds the templated first question from the profile
func openingQuestion(p Profile) string {
	techStack := p.TechStack
	if techStack == "" {
		techStack = "your chosen technologies"
	}

	firstTech := strings.TrimSpace(strings.SplitN(techStack, ",", 2)[0])
	if firstTech == "" {
		firstTech = techStack
	}

	return fmt.Sprintf(
		"Hello! I'm Prep Piper, your AI interviewer for today's %s interview.\n\n"+
			"I see your tech stack includes: %s\n\n"+
			"Let's start with something fundamental. Can you explain what %s is and "+
			"describe one project where you've used it effectively?",
		p.Position, techStack, firstTech)
}

// systemPrompt builds the generation prompt for the next question
func systemPrompt(p Profile, transcript []Turn, questionNumber int) string {
	recent := transcript
	if len(recent) > recentTurns {
		recent = recent[len(recent)-recentTurns:]
	}

	var conversation strings.Builder
	for i, turn := range recent {
		if i > 0 {
			conversation.WriteString("\n\n")
		}
		conversation.WriteString(capitalize(turn.Speaker))
		conversation.WriteString(": ")
		conversation.WriteString(turn.Text)
	}

	difficulty := p.Difficulty
	if difficulty == "" {
		difficulty = "beginner"
	}

	return fmt.Sprintf(`You are a technical interviewer for a %s role.

INTERVIEW CONTEXT:
- Tech Stack: %s
- Question Number: %d of %d
- Current Level: %s

RECENT CONVERSATION:
%s

Your role as an interviewer:
1. Ask ONE question at a time and wait for the candidate's response
2. Start with basics and gradually increase difficulty
3. Ask follow-up questions based on the candidate's previous response
4. Probe deeper when answers are incomplete or need clarification
5. Cover both theoretical knowledge and practical implementation
6. When the candidate says "I don't know", offer hints or redirect to related simpler topics
7. Always reference their previous response to show you're listening

Generate only the next question, nothing else.`,
		p.Position, p.TechStack, questionNumber, p.MaxQuestions, difficulty, conversation.String())
}

// completionSummary builds the closing message
func completionSummary(p Profile, answered int) string {
	return fmt.Sprintf(
		"Interview complete! Thank you for participating in this %s interview.\n\n"+
			"Questions answered: %d/%d\n"+
			"Tech stack covered: %s",
		p.Position, answered, p.MaxQuestions, p.TechStack)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
