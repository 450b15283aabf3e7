package session

import (
	"cmp"
	"encoding/json"
	"slices"
	"time"
)

// AnonymousParticipant replaces responder identities in anonymous views.
const AnonymousParticipant = "Anonymous"

// ResultView is one response as exposed to clients.
type ResultView struct {
	ParticipantID string          `json:"participantId"`
	StudentID     string          `json:"studentId,omitempty"`
	Response      json.RawMessage `json:"response"`
	SubmittedAt   time.Time       `json:"submittedAt"`
}

// Anonymize lists the session's results ordered by submission time. When
// anonymous is set every identity is replaced by AnonymousParticipant; the
// response payloads are never rewritten.
func Anonymize(sess Session, anonymous bool) []ResultView {
	views := make([]ResultView, 0, len(sess.Results))
	for connectionID, record := range sess.Results {
		view := ResultView{
			ParticipantID: connectionID,
			StudentID:     record.StudentID,
			Response:      record.Response,
			SubmittedAt:   record.SubmittedAt,
		}
		views = append(views, view)
	}
	slices.SortFunc(views, func(a, b ResultView) int {
		if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})
	if anonymous {
		for i := range views {
			views[i].ParticipantID = AnonymousParticipant
			if views[i].StudentID != "" {
				views[i].StudentID = AnonymousParticipant
			}
		}
	}
	return views
}
