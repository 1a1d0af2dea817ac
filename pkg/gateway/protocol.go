package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Client message types
const (
	TypeStartInterview  = "startInterview"
	TypeTextAnswer      = "textAnswer"
	TypeEndInterview    = "endInterview"
	TypeResumeInterview = "resumeInterview"
)

// ClientMessage is the envelope for every JSON control frame from a client.
// Audio arrives as binary frames and never goes through this type.
type ClientMessage struct {
	Type       string `json:"type"`
	TechStack  string `json:"techStack,omitempty"`
	Position   string `json:"position,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	Text       string `json:"text,omitempty"`
}

// Server message types
const (
	TypeInterviewStarted  = "interviewStarted"
	TypeSTTConnected      = "sttConnected"
	TypeInterimTranscript = "interimTranscript"
	TypeTranscript        = "transcript"
	TypeAudioGenerated    = "audioGenerated"
	TypeAudioFinished     = "audioFinished"
	TypeInterviewComplete = "interviewComplete"
	TypeError             = "error"
)

// ServerMessage is the envelope for every JSON frame sent to a client
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Question  string `json:"question,omitempty"`
	Speaker   string `json:"speaker,omitempty"`
	Text      string `json:"text,omitempty"`
	AudioURL  string `json:"audioUrl,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Control frame schemas, keyed by message type. Validation happens on the
// raw frame before any handler runs.
var frameSchemas = map[string]*gojsonschema.Schema{}

func init() {
	sources := map[string]string{
		TypeStartInterview: `{
			"type": "object",
			"required": ["type", "techStack", "position"],
			"properties": {
				"type":       {"const": "startInterview"},
				"techStack":  {"type": "string", "minLength": 1},
				"position":   {"type": "string", "minLength": 1},
				"difficulty": {"type": "string", "minLength": 1}
			}
		}`,
		TypeTextAnswer: `{
			"type": "object",
			"required": ["type", "text"],
			"properties": {
				"type": {"const": "textAnswer"},
				"text": {"type": "string", "minLength": 1}
			}
		}`,
		TypeEndInterview: `{
			"type": "object",
			"required": ["type"],
			"properties": {
				"type": {"const": "endInterview"}
			}
		}`,
		TypeResumeInterview: `{
			"type": "object",
			"required": ["type", "sessionId"],
			"properties": {
				"type":      {"const": "resumeInterview"},
				"sessionId": {"type": "string", "minLength": 1}
			}
		}`,
	}

	for msgType, src := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			panic(fmt.Sprintf("invalid frame schema for %s: %v", msgType, err))
		}
		frameSchemas[msgType] = schema
	}
}

// parseClientMessage validates a raw control frame and decodes it
func parseClientMessage(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("malformed frame: %w", err)
	}

	schema, ok := frameSchemas[msg.Type]
	if !ok {
		return ClientMessage{}, fmt.Errorf("unknown message type %q", msg.Type)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return ClientMessage{}, fmt.Errorf("frame validation: %w", err)
	}
	if !result.Valid() {
		return ClientMessage{}, fmt.Errorf("invalid %s frame: %s", msg.Type, result.Errors()[0])
	}

	return msg, nil
}
