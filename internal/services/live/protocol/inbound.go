package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	apperrors "github.com/classpulse/live/internal/platform/errors"
)

// MaxIDRunes caps activity and participant identifiers.
const MaxIDRunes = 128

// Inbound is one validated client event.
type Inbound interface {
	// Activity returns the activity room the event addresses.
	Activity() string
	inbound()
}

// ActivityEvent carries only an activity id. Its Type tells join, leave,
// pause, resume, end, status, and results requests apart.
type ActivityEvent struct {
	Type       string
	ActivityID string
}

// JoinAsStudent joins a room and announces the participant behind the
// connection.
type JoinAsStudent struct {
	ActivityID string
	StudentID  string
}

// StartSession starts a fresh session. Anonymous is the activity's
// anonymous-responses setting, supplied by the instructor client.
type StartSession struct {
	ActivityID string
	Anonymous  bool
}

// SubmitResponse offers an opaque response object to the active session.
type SubmitResponse struct {
	ActivityID string
	Response   json.RawMessage
}

func (e ActivityEvent) Activity() string  { return e.ActivityID }
func (e JoinAsStudent) Activity() string  { return e.ActivityID }
func (e StartSession) Activity() string   { return e.ActivityID }
func (e SubmitResponse) Activity() string { return e.ActivityID }

func (ActivityEvent) inbound()  {}
func (JoinAsStudent) inbound()  {}
func (StartSession) inbound()   {}
func (SubmitResponse) inbound() {}

// activityOnlyTypes are the events whose payload is just an activity id.
var activityOnlyTypes = map[string]bool{
	TypeJoinActivity:     true,
	TypeLeaveActivity:    true,
	TypePauseSession:     true,
	TypeResumeSession:    true,
	TypeEndSession:       true,
	TypeGetSessionStatus: true,
	TypeRequestResults:   true,
}

// IsControl reports whether the event type drives the session lifecycle.
func IsControl(eventType string) bool {
	switch eventType {
	case TypeStartSession, TypePauseSession, TypeResumeSession, TypeEndSession:
		return true
	default:
		return false
	}
}

type activityPayload struct {
	ActivityID string `json:"activityId"`
	Anonymous  bool   `json:"anonymous"`
}

type joinAsStudentPayload struct {
	ActivityID string `json:"activityId"`
	StudentID  string `json:"studentId"`
}

type submitPayload struct {
	ActivityID string          `json:"activityId"`
	Response   json.RawMessage `json:"response"`
}

// Decode validates a frame and returns its typed event. Errors are coded
// INVALID_ARGUMENT and safe to show to the sender.
func Decode(frame Frame) (Inbound, error) {
	if len(frame.Payload) > MaxPayloadBytes {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "payload too large")
	}

	switch {
	case activityOnlyTypes[frame.Type]:
		p, err := decodeActivityPayload(frame)
		if err != nil {
			return nil, err
		}
		return ActivityEvent{Type: frame.Type, ActivityID: p.ActivityID}, nil

	case frame.Type == TypeStartSession:
		p, err := decodeActivityPayload(frame)
		if err != nil {
			return nil, err
		}
		return StartSession{ActivityID: p.ActivityID, Anonymous: p.Anonymous}, nil

	case frame.Type == TypeJoinAsStudent:
		var p joinAsStudentPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, invalidPayload(frame.Type, err)
		}
		activityID, err := NormalizeID("activityId", p.ActivityID)
		if err != nil {
			return nil, err
		}
		studentID, err := NormalizeID("studentId", p.StudentID)
		if err != nil {
			return nil, err
		}
		return JoinAsStudent{ActivityID: activityID, StudentID: studentID}, nil

	case frame.Type == TypeSubmitResponse:
		var p submitPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, invalidPayload(frame.Type, err)
		}
		activityID, err := NormalizeID("activityId", p.ActivityID)
		if err != nil {
			return nil, err
		}
		response := bytes.TrimSpace(p.Response)
		if len(response) == 0 || response[0] != '{' {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, "response must be an object")
		}
		return SubmitResponse{ActivityID: activityID, Response: response}, nil

	default:
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "unsupported event type")
	}
}

// decodeActivityPayload accepts either a bare JSON string or an object with
// an activityId field.
func decodeActivityPayload(frame Frame) (activityPayload, error) {
	var p activityPayload
	trimmed := bytes.TrimSpace(frame.Payload)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &p.ActivityID); err != nil {
			return activityPayload{}, invalidPayload(frame.Type, err)
		}
	} else if err := json.Unmarshal(trimmed, &p); err != nil {
		return activityPayload{}, invalidPayload(frame.Type, err)
	}

	activityID, err := NormalizeID("activityId", p.ActivityID)
	if err != nil {
		return activityPayload{}, err
	}
	p.ActivityID = activityID
	return p, nil
}

// NormalizeID trims an identifier, folds it to Unicode NFC, and enforces
// presence and length.
func NormalizeID(field, raw string) (string, error) {
	value := norm.NFC.String(strings.TrimSpace(raw))
	if value == "" {
		return "", apperrors.New(apperrors.CodeInvalidArgument, field+" is required")
	}
	if utf8.RuneCountInString(value) > MaxIDRunes {
		return "", apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("%s must be at most %d characters", field, MaxIDRunes))
	}
	return value, nil
}

func invalidPayload(eventType string, cause error) error {
	return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid "+eventType+" payload", cause)
}
