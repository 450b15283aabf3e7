// Package registry tracks live connections, their outbound senders, and the
// participant identity each one announced.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/classpulse/live/internal/platform/id"
	"github.com/classpulse/live/internal/services/live/protocol"
)

// Roles carried by verified identity tokens.
const (
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
	RoleStudent    = "student"
)

// Sender delivers frames to one connection. Send must not block; it reports
// false when the frame could not be queued.
type Sender interface {
	Send(frame protocol.Frame) bool
}

// Identity is what the transport learned about a connection before its first
// event, typically from a verified token.
type Identity struct {
	ParticipantID string
	Role          string
}

// CanControl reports whether the identity may drive session lifecycle events.
func (i Identity) CanControl() bool {
	switch i.Role {
	case RoleInstructor, RoleAdmin:
		return true
	default:
		return false
	}
}

type connection struct {
	sender   Sender
	identity Identity
	room     string
}

// Registry owns every live connection by id.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connection
	newID func() (string, error)
}

// New creates an empty registry. A nil generator defaults to id.NewID.
func New(newID func() (string, error)) *Registry {
	if newID == nil {
		newID = id.NewID
	}
	return &Registry{
		conns: make(map[string]*connection),
		newID: newID,
	}
}

// Connect records a new connection and returns its id.
func (r *Registry) Connect(sender Sender, identity Identity) (string, error) {
	if sender == nil {
		return "", fmt.Errorf("sender is required")
	}
	connectionID, err := r.newID()
	if err != nil {
		return "", fmt.Errorf("generate connection id: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[connectionID]; exists {
		return "", fmt.Errorf("connection id %q already in use", connectionID)
	}
	identity.ParticipantID = strings.TrimSpace(identity.ParticipantID)
	r.conns[connectionID] = &connection{sender: sender, identity: identity}
	return connectionID, nil
}

// Disconnect forgets the connection. It reports whether the connection was
// known; calling it again is harmless.
func (r *Registry) Disconnect(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connectionID]; !ok {
		return false
	}
	delete(r.conns, connectionID)
	return true
}

// Identify records the participant behind the connection. The latest call
// wins.
func (r *Registry) Identify(connectionID, participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connectionID]
	if !ok {
		return false
	}
	conn.identity.ParticipantID = strings.TrimSpace(participantID)
	return true
}

// Identity returns what is known about the connection.
func (r *Registry) Identity(connectionID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connectionID]
	if !ok {
		return Identity{}, false
	}
	return conn.identity, true
}

// Participant returns the connection's participant id, or "".
func (r *Registry) Participant(connectionID string) string {
	identity, _ := r.Identity(connectionID)
	return identity.ParticipantID
}

// Room returns the activity room the connection last joined, or "".
func (r *Registry) Room(connectionID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if conn, ok := r.conns[connectionID]; ok {
		return conn.room
	}
	return ""
}

// SetRoom records the connection's current room and returns the previous
// one. An empty room clears it.
func (r *Registry) SetRoom(connectionID, roomID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connectionID]
	if !ok {
		return ""
	}
	previous := conn.room
	conn.room = roomID
	return previous
}

// Send queues a frame for the connection. It reports false when the
// connection is unknown or its sender refused the frame.
func (r *Registry) Send(connectionID string, frame protocol.Frame) bool {
	r.mu.RLock()
	conn, ok := r.conns[connectionID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return conn.sender.Send(frame)
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
