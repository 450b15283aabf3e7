package session

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Submission is one response offered to an activity's session.
type Submission struct {
	ConnectionID string
	Response     json.RawMessage
	// ParticipantID is used when the payload carries no identity of its own,
	// typically the id the connection announced with join-as-student.
	ParticipantID string
}

// Receipt describes an accepted submission.
type Receipt struct {
	Record         ResponseRecord
	TotalResponses int
}

// Store keeps at most one session per activity.
//
// Start always replaces the stored session. Two starts racing for the same
// activity are not serialized against each other: whichever the store applies
// last wins and the earlier session, with its results, is discarded.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewStore creates an empty store. A nil clock defaults to time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		sessions: make(map[string]*Session),
		now:      now,
	}
}

// Start creates a fresh active session for the activity, replacing any
// existing one regardless of its status.
func (s *Store) Start(activityID string, participants []string, anonymous bool) Session {
	startedAt := s.now().UTC()
	sess := &Session{
		ID:           fmt.Sprintf("session-%s-%d", activityID, startedAt.UnixMilli()),
		ActivityID:   activityID,
		Status:       StatusActive,
		StartedAt:    startedAt,
		Participants: slices.Clone(participants),
		Results:      make(map[string]ResponseRecord),
		Anonymous:    anonymous,
	}

	s.mu.Lock()
	s.sessions[activityID] = sess
	out := sess.clone()
	s.mu.Unlock()
	return out
}

// Pause moves an active session to paused. It reports false when no session
// exists; other statuses are left unchanged.
func (s *Store) Pause(activityID string) (Session, bool) {
	return s.transition(activityID, func(sess *Session) {
		if sess.Status == StatusActive {
			sess.Status = StatusPaused
		}
	})
}

// Resume moves a paused session back to active. It reports false when no
// session exists; other statuses are left unchanged.
func (s *Store) Resume(activityID string) (Session, bool) {
	return s.transition(activityID, func(sess *Session) {
		if sess.Status == StatusPaused {
			sess.Status = StatusActive
		}
	})
}

// End completes the session. Ending twice keeps the first end time.
func (s *Store) End(activityID string) (Session, bool) {
	return s.transition(activityID, func(sess *Session) {
		if sess.Status == StatusCompleted {
			return
		}
		sess.Status = StatusCompleted
		sess.EndedAt = s.now().UTC()
	})
}

func (s *Store) transition(activityID string, apply func(*Session)) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[activityID]
	if !ok {
		return Session{}, false
	}
	apply(sess)
	return sess.clone(), true
}

// RecordResult stores the submission when the activity's session is active.
// A later submission from the same connection replaces the earlier one.
func (s *Store) RecordResult(activityID string, sub Submission) (Receipt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[activityID]
	if !ok || sess.Status != StatusActive {
		return Receipt{}, false
	}

	studentID := ExtractParticipantID(sub.Response)
	if studentID == "" {
		studentID = sub.ParticipantID
	}
	record := ResponseRecord{
		Response:    slices.Clone(sub.Response),
		SubmittedAt: s.now().UTC(),
		StudentID:   studentID,
	}
	sess.Results[sub.ConnectionID] = record
	return Receipt{Record: record, TotalResponses: len(sess.Results)}, true
}

// Lookup returns the stored session, if any.
func (s *Store) Lookup(activityID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[activityID]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// Get returns the stored session or, when none exists, a waiting placeholder
// listing the room's current members.
func (s *Store) Get(activityID string, members []string) Session {
	if sess, ok := s.Lookup(activityID); ok {
		return sess
	}
	participants := slices.Clone(members)
	if participants == nil {
		participants = []string{}
	}
	return Session{
		ID:           fmt.Sprintf("session-%s-waiting", activityID),
		ActivityID:   activityID,
		Status:       StatusWaiting,
		Participants: participants,
		Results:      map[string]ResponseRecord{},
	}
}
