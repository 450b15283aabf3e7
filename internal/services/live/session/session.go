// Package session holds the per-activity live session state machine.
package session

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"time"
)

// Status describes where a live session is in its lifecycle.
type Status string

const (
	// StatusWaiting is reported when no session was started yet. It is never
	// stored.
	StatusWaiting Status = "waiting"
	// StatusActive accepts submissions.
	StatusActive Status = "active"
	// StatusPaused holds submissions until the session resumes.
	StatusPaused Status = "paused"
	// StatusCompleted is terminal until the next start.
	StatusCompleted Status = "completed"
)

// ResponseRecord is the latest submission of one connection.
type ResponseRecord struct {
	Response    json.RawMessage `json:"response"`
	SubmittedAt time.Time       `json:"submittedAt"`
	StudentID   string          `json:"studentId,omitempty"`
}

// Session is the live run of one activity.
type Session struct {
	ID           string                    `json:"id"`
	ActivityID   string                    `json:"activityId"`
	Status       Status                    `json:"status"`
	StartedAt    time.Time                 `json:"startedAt,omitzero"`
	EndedAt      time.Time                 `json:"endedAt,omitzero"`
	Participants []string                  `json:"participants"`
	Results      map[string]ResponseRecord `json:"results"`
	Anonymous    bool                      `json:"anonymous"`
}

// TotalResponses counts distinct submitting connections.
func (s Session) TotalResponses() int {
	return len(s.Results)
}

func (s *Session) clone() Session {
	out := *s
	out.Participants = slices.Clone(s.Participants)
	if out.Participants == nil {
		out.Participants = []string{}
	}
	out.Results = maps.Clone(s.Results)
	if out.Results == nil {
		out.Results = map[string]ResponseRecord{}
	}
	return out
}

// participantFields lists payload keys that carry the responder's identity,
// in lookup order.
var participantFields = []string{"studentId", "participantId"}

// ExtractParticipantID reads the responder identity from an opaque response
// payload. It returns "" when the payload is not an object or carries none.
func ExtractParticipantID(payload json.RawMessage) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}
	for _, key := range participantFields {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
