package server

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/classpulse/live/internal/platform/errors"
	"github.com/classpulse/live/internal/services/live/protocol"
	"github.com/classpulse/live/internal/services/live/registry"
	"github.com/classpulse/live/internal/services/live/rooms"
	"github.com/classpulse/live/internal/services/live/session"
)

const tracerName = "github.com/classpulse/live/internal/services/live/app"

var (
	errSessionNotActive = apperrors.New(apperrors.CodeFailedPrecondition, "Activity is not active or session not found")
	errControlDenied    = apperrors.New(apperrors.CodePermissionDenied, "instructor role required")
)

// Router applies inbound events to the live state and fans out the results.
//
// Dispatch holds one lock for the whole event, so every handler sees and
// leaves a consistent view of rooms and sessions. Handlers only queue frames;
// socket writes happen on each connection's writer.
type Router struct {
	mu       sync.Mutex
	registry *registry.Registry
	rooms    *rooms.Tracker
	sessions *session.Store
	tracer   trace.Tracer

	requireControlRole bool
}

// NewRouter wires the router to its state holders. When requireControlRole
// is set only instructor and admin identities may start, pause, resume, or
// end sessions.
func NewRouter(reg *registry.Registry, tracker *rooms.Tracker, sessions *session.Store, requireControlRole bool) *Router {
	return &Router{
		registry:           reg,
		rooms:              tracker,
		sessions:           sessions,
		tracer:             otel.Tracer(tracerName),
		requireControlRole: requireControlRole,
	}
}

// Connect registers a connection. It has no room or session side effects.
func (r *Router) Connect(sender registry.Sender, identity registry.Identity) (string, error) {
	connectionID, err := r.registry.Connect(sender, identity)
	if err != nil {
		return "", err
	}
	log.Printf("live: connected conn=%q participant=%q role=%q", connectionID, identity.ParticipantID, identity.Role)
	return connectionID, nil
}

// Disconnect removes the connection from every room and tells each affected
// room its new count. Results the connection submitted are kept.
func (r *Router) Disconnect(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.registry.Disconnect(connectionID) {
		return
	}
	changes := r.rooms.RemoveEverywhere(connectionID)
	for _, change := range changes {
		r.broadcast(change.RoomID, protocol.NewFrame(protocol.TypeParticipantCount, change.Count))
	}
	log.Printf("live: disconnected conn=%q rooms=%d", connectionID, len(changes))
}

// Dispatch validates and applies one frame from the connection. Rejections
// are reported to that connection alone.
func (r *Router) Dispatch(ctx context.Context, connectionID string, frame protocol.Frame) {
	event, err := protocol.Decode(frame)
	if err != nil {
		r.reject(connectionID, frame.RequestID, err)
		return
	}

	_, span := r.tracer.Start(ctx, "live."+frame.Type, trace.WithAttributes(
		attribute.String("live.connection_id", connectionID),
		attribute.String("live.activity_id", event.Activity()),
	))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.apply(connectionID, frame, event); err != nil {
		span.SetStatus(otelcodes.Error, apperrors.MessageOf(err))
		r.reject(connectionID, frame.RequestID, err)
	}
}

func (r *Router) apply(connectionID string, frame protocol.Frame, event protocol.Inbound) error {
	if r.requireControlRole && protocol.IsControl(frame.Type) {
		identity, _ := r.registry.Identity(connectionID)
		if !identity.CanControl() {
			return errControlDenied
		}
	}

	switch ev := event.(type) {
	case protocol.JoinAsStudent:
		r.registry.Identify(connectionID, ev.StudentID)
		r.join(connectionID, ev.ActivityID)
	case protocol.StartSession:
		r.startSession(ev)
	case protocol.SubmitResponse:
		return r.submit(connectionID, frame.RequestID, ev)
	case protocol.ActivityEvent:
		switch ev.Type {
		case protocol.TypeJoinActivity:
			r.join(connectionID, ev.ActivityID)
		case protocol.TypeLeaveActivity:
			r.leave(connectionID, ev.ActivityID)
		case protocol.TypePauseSession:
			r.publishTransition(ev.ActivityID, "paused", r.sessions.Pause)
		case protocol.TypeResumeSession:
			r.publishTransition(ev.ActivityID, "resumed", r.sessions.Resume)
		case protocol.TypeEndSession:
			r.endSession(ev.ActivityID)
		case protocol.TypeGetSessionStatus:
			sess := r.sessions.Get(ev.ActivityID, r.rooms.Members(ev.ActivityID))
			r.registry.Send(connectionID, protocol.NewFrame(protocol.TypeSessionUpdated, sess).Reply(frame.RequestID))
		case protocol.TypeRequestResults:
			r.sendResults(connectionID, frame.RequestID, ev.ActivityID)
		}
	}
	return nil
}

// join moves the connection into the room. A connection belongs to one room
// at a time, so joining another room leaves the previous one first.
func (r *Router) join(connectionID, activityID string) {
	if previous := r.registry.SetRoom(connectionID, activityID); previous != "" && previous != activityID {
		count := r.rooms.Leave(previous, connectionID)
		r.broadcast(previous, protocol.NewFrame(protocol.TypeParticipantCount, count))
	}
	count := r.rooms.Join(activityID, connectionID)
	r.broadcast(activityID, protocol.NewFrame(protocol.TypeParticipantCount, count))
	log.Printf("live: joined conn=%q activity=%q count=%d", connectionID, activityID, count)
}

func (r *Router) leave(connectionID, activityID string) {
	if r.registry.Room(connectionID) == activityID {
		r.registry.SetRoom(connectionID, "")
	}
	count := r.rooms.Leave(activityID, connectionID)
	r.broadcast(activityID, protocol.NewFrame(protocol.TypeParticipantCount, count))
	log.Printf("live: left conn=%q activity=%q count=%d", connectionID, activityID, count)
}

func (r *Router) startSession(ev protocol.StartSession) {
	sess := r.sessions.Start(ev.ActivityID, r.rooms.Members(ev.ActivityID), ev.Anonymous)
	r.broadcast(ev.ActivityID, protocol.NewFrame(protocol.TypeSessionStarted, sess))
	r.broadcast(ev.ActivityID, protocol.NewFrame(protocol.TypeSessionUpdated, sess))
	log.Printf("live: session started activity=%q session=%q participants=%d", ev.ActivityID, sess.ID, len(sess.Participants))
}

func (r *Router) publishTransition(activityID, verb string, transition func(string) (session.Session, bool)) {
	sess, ok := transition(activityID)
	if !ok {
		return
	}
	r.broadcast(activityID, protocol.NewFrame(protocol.TypeSessionUpdated, sess))
	log.Printf("live: session %s activity=%q status=%q", verb, activityID, sess.Status)
}

func (r *Router) endSession(activityID string) {
	sess, ok := r.sessions.End(activityID)
	if !ok {
		return
	}
	r.broadcast(activityID, protocol.NewFrame(protocol.TypeSessionEnded, sess))
	r.broadcast(activityID, protocol.NewFrame(protocol.TypeSessionUpdated, sess))
	log.Printf("live: session ended activity=%q responses=%d", activityID, sess.TotalResponses())
}

// submit records the response and delivers the receipt twice: once to the
// room and once directly to the submitter.
func (r *Router) submit(connectionID, requestID string, ev protocol.SubmitResponse) error {
	receipt, ok := r.sessions.RecordResult(ev.ActivityID, session.Submission{
		ConnectionID:  connectionID,
		Response:      ev.Response,
		ParticipantID: r.registry.Participant(connectionID),
	})
	if !ok {
		log.Printf("live: submission rejected conn=%q activity=%q", connectionID, ev.ActivityID)
		return errSessionNotActive
	}

	received := protocol.NewFrame(protocol.TypeResponseReceived, protocol.ResponseReceived{
		ParticipantID:  connectionID,
		Response:       receipt.Record.Response,
		TotalResponses: receipt.TotalResponses,
	})
	r.broadcast(ev.ActivityID, received)
	r.registry.Send(connectionID, received.Reply(requestID))
	return nil
}

// sendResults answers only while the session is active.
func (r *Router) sendResults(connectionID, requestID, activityID string) {
	sess, ok := r.sessions.Lookup(activityID)
	if !ok || sess.Status != session.StatusActive {
		return
	}
	r.registry.Send(connectionID, protocol.NewFrame(protocol.TypeResultsUpdated, protocol.ResultsUpdated{
		ActivityID:     activityID,
		Results:        session.Anonymize(sess, sess.Anonymous),
		TotalResponses: sess.TotalResponses(),
	}).Reply(requestID))
}

func (r *Router) broadcast(activityID string, frame protocol.Frame) {
	for _, member := range r.rooms.Members(activityID) {
		if !r.registry.Send(member, frame) {
			log.Printf("live: dropped %s for conn=%q activity=%q", frame.Type, member, activityID)
		}
	}
}

func (r *Router) reject(connectionID, requestID string, err error) {
	r.registry.Send(connectionID, protocol.ErrorFrame(requestID, err))
}
