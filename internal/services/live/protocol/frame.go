// Package protocol defines the live websocket frames and the closed set of
// events carried inside them.
package protocol

import (
	"encoding/json"
	"log"

	apperrors "github.com/classpulse/live/internal/platform/errors"
	"github.com/classpulse/live/internal/services/live/session"
)

// MaxPayloadBytes caps the payload of a single inbound frame.
const MaxPayloadBytes = 16 * 1024

// Inbound event types.
const (
	TypeJoinActivity     = "join-activity"
	TypeLeaveActivity    = "leave-activity"
	TypeJoinAsStudent    = "join-as-student"
	TypeStartSession     = "start-session"
	TypePauseSession     = "pause-session"
	TypeResumeSession    = "resume-session"
	TypeEndSession       = "end-session"
	TypeSubmitResponse   = "submit-response"
	TypeGetSessionStatus = "get-session-status"
	TypeRequestResults   = "request-results"
)

// Outbound event types.
const (
	TypeParticipantCount = "participant-count"
	TypeSessionStarted   = "session-started"
	TypeSessionUpdated   = "session-updated"
	TypeSessionEnded     = "session-ended"
	TypeResponseReceived = "response-received"
	TypeResultsUpdated   = "results-updated"
	TypeError            = "error"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Message string         `json:"message"`
	Code    apperrors.Code `json:"code,omitempty"`
}

// ResponseReceived acknowledges an accepted submission.
type ResponseReceived struct {
	ParticipantID  string          `json:"participantId"`
	Response       json.RawMessage `json:"response"`
	TotalResponses int             `json:"totalResponses"`
}

// ResultsUpdated carries a results view of an active session.
type ResultsUpdated struct {
	ActivityID     string               `json:"activityId"`
	Results        []session.ResultView `json:"results"`
	TotalResponses int                  `json:"totalResponses"`
}

// NewFrame encodes payload into a frame of the given type.
func NewFrame(eventType string, payload any) Frame {
	return Frame{Type: eventType, Payload: mustJSON(payload)}
}

// Reply returns a copy of f addressed to the request it answers.
func (f Frame) Reply(requestID string) Frame {
	f.RequestID = requestID
	return f
}

// ErrorFrame builds the error frame for err. Only coded errors expose their
// message; anything else is reported generically.
func ErrorFrame(requestID string, err error) Frame {
	return NewFrame(TypeError, ErrorPayload{
		Message: apperrors.MessageOf(err),
		Code:    apperrors.CodeOf(err),
	}).Reply(requestID)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("live: marshal frame payload: %v", err)
		return nil
	}
	return b
}
