package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/websocket"

	"github.com/classpulse/live/internal/services/live/protocol"
	"github.com/classpulse/live/internal/services/live/registry"
)

const testJWTSecret = "test-secret"

func dialWS(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	conn, err := dialWSErr(srv, srv.URL, header)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func dialWSErr(srv *httptest.Server, origin string, header http.Header) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	cfg, err := websocket.NewConfig(wsURL, origin)
	if err != nil {
		return nil, err
	}
	if header != nil {
		cfg.Header = header
	}
	return websocket.DialConfig(cfg)
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func writeFrame(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	frame := map[string]any{
		"type":       eventType,
		"request_id": "req-" + eventType,
		"payload":    payload,
	}
	if err := websocket.JSON.Send(conn, frame); err != nil {
		t.Fatalf("send frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got protocol.Frame
	if err := websocket.JSON.Receive(conn, &got); err != nil {
		t.Fatalf("receive server frame: %v", err)
	}
	return got
}

func expectType(t *testing.T, conn *websocket.Conn, want string) protocol.Frame {
	t.Helper()
	got := readFrame(t, conn)
	if got.Type != want {
		t.Fatalf("frame type = %q, want %q (payload %s)", got.Type, want, string(got.Payload))
	}
	return got
}

func signToken(t *testing.T, subject, role string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
		Role: role,
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestWebSocketJoinBroadcastsParticipantCount(t *testing.T) {
	srv := newTestServer(t, NewHandler())
	connA := dialWS(t, srv, nil)
	connB := dialWS(t, srv, nil)

	writeFrame(t, connA, protocol.TypeJoinActivity, "act1")
	expectType(t, connA, protocol.TypeParticipantCount)

	writeFrame(t, connB, protocol.TypeJoinActivity, map[string]string{"activityId": "act1"})
	got := expectType(t, connA, protocol.TypeParticipantCount)
	if string(got.Payload) != "2" {
		t.Fatalf("participant count payload = %s, want 2", string(got.Payload))
	}
	expectType(t, connB, protocol.TypeParticipantCount)
}

func TestWebSocketSubmitDeliversRoomBroadcastAndEcho(t *testing.T) {
	srv := newTestServer(t, NewHandler())
	instructor := dialWS(t, srv, nil)
	student := dialWS(t, srv, nil)

	writeFrame(t, instructor, protocol.TypeJoinActivity, "act1")
	expectType(t, instructor, protocol.TypeParticipantCount)
	writeFrame(t, student, protocol.TypeJoinAsStudent, map[string]string{"activityId": "act1", "studentId": "s-1"})
	expectType(t, instructor, protocol.TypeParticipantCount)
	expectType(t, student, protocol.TypeParticipantCount)

	writeFrame(t, instructor, protocol.TypeStartSession, "act1")
	for _, conn := range []*websocket.Conn{instructor, student} {
		expectType(t, conn, protocol.TypeSessionStarted)
		expectType(t, conn, protocol.TypeSessionUpdated)
	}

	writeFrame(t, student, protocol.TypeSubmitResponse, map[string]any{
		"activityId": "act1",
		"response":   map[string]any{"answer": "x"},
	})

	broadcast := expectType(t, student, protocol.TypeResponseReceived)
	echo := expectType(t, student, protocol.TypeResponseReceived)
	if broadcast.RequestID != "" || echo.RequestID != "req-submit-response" {
		t.Fatalf("request ids = %q/%q, want broadcast then echo", broadcast.RequestID, echo.RequestID)
	}
	observed := expectType(t, instructor, protocol.TypeResponseReceived)
	var receipt protocol.ResponseReceived
	if err := json.Unmarshal(observed.Payload, &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.TotalResponses != 1 || !strings.Contains(string(receipt.Response), `"answer":"x"`) {
		t.Fatalf("receipt = %+v", receipt)
	}
}

func TestWebSocketUnknownTypeReturnsError(t *testing.T) {
	srv := newTestServer(t, NewHandler())
	conn := dialWS(t, srv, nil)

	writeFrame(t, conn, "dance", "act1")

	got := expectType(t, conn, protocol.TypeError)
	if got.RequestID != "req-dance" {
		t.Fatalf("request id = %q, want req-dance", got.RequestID)
	}
	if !strings.Contains(string(got.Payload), "INVALID_ARGUMENT") {
		t.Fatalf("error payload = %s, expected INVALID_ARGUMENT code", string(got.Payload))
	}
}

func TestWebSocketMalformedFramesCloseAfterBudget(t *testing.T) {
	srv := newTestServer(t, NewHandler())
	conn := dialWS(t, srv, nil)

	for i := 0; i < maxDecodeErrorsPerConn; i++ {
		if _, err := conn.Write([]byte("{not json")); err != nil {
			t.Fatalf("write malformed frame: %v", err)
		}
		got := expectType(t, conn, protocol.TypeError)
		if !strings.Contains(string(got.Payload), "invalid frame payload") {
			t.Fatalf("error payload = %s", string(got.Payload))
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame protocol.Frame
	if err := websocket.JSON.Receive(conn, &frame); err == nil {
		t.Fatalf("expected closed connection, got frame %q", frame.Type)
	}
}

func TestWebSocketRateLimitClosesConnection(t *testing.T) {
	srv := newTestServer(t, NewHandler())
	conn := dialWS(t, srv, nil)

	for i := 0; i <= maxFramesPerSecond; i++ {
		writeFrame(t, conn, protocol.TypeGetSessionStatus, "act1")
	}

	for i := 0; i < maxFramesPerSecond; i++ {
		expectType(t, conn, protocol.TypeSessionUpdated)
	}
	got := expectType(t, conn, protocol.TypeError)
	if !strings.Contains(string(got.Payload), "RESOURCE_EXHAUSTED") {
		t.Fatalf("error payload = %s, expected RESOURCE_EXHAUSTED", string(got.Payload))
	}
}

func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	handler := newHandler(newLiveRouter(false), handlerOptions{
		allowedOrigins: []string{"http://localhost:3000"},
	})
	srv := newTestServer(t, handler)

	conn, err := dialWSErr(srv, "http://evil.example", nil)
	if err == nil {
		_ = conn.Close()
		t.Fatal("expected websocket dial error for disallowed origin")
	}

	conn, err = dialWSErr(srv, "http://localhost:3000", nil)
	if err != nil {
		t.Fatalf("dial allowed origin: %v", err)
	}
	_ = conn.Close()
}

func TestWebSocketRequiresTokenWhenAuthorizerConfigured(t *testing.T) {
	handler := newHandler(newLiveRouter(true), handlerOptions{
		authorizer: newTokenAuthorizer(testJWTSecret, "", nil),
	})
	srv := newTestServer(t, handler)

	_, err := dialWSErr(srv, srv.URL, nil)
	if err == nil {
		t.Fatal("expected websocket dial error")
	}
	if !strings.Contains(err.Error(), "bad status") {
		t.Fatalf("dial error = %v, expected bad status", err)
	}

	expired := http.Header{}
	expired.Set("Authorization", "Bearer "+signToken(t, "t-1", registry.RoleInstructor, -time.Minute))
	if _, err := dialWSErr(srv, srv.URL, expired); err == nil {
		t.Fatal("expected websocket dial error for expired token")
	}
}

func TestWebSocketStudentTokenCannotStartSession(t *testing.T) {
	handler := newHandler(newLiveRouter(true), handlerOptions{
		authorizer: newTokenAuthorizer(testJWTSecret, "", nil),
	})
	srv := newTestServer(t, handler)

	studentHeader := http.Header{}
	studentHeader.Set("Cookie", tokenCookieName+"="+signToken(t, "s-1", registry.RoleStudent, time.Hour))
	student := dialWS(t, srv, studentHeader)

	instructorHeader := http.Header{}
	instructorHeader.Set("Authorization", "Bearer "+signToken(t, "t-1", registry.RoleInstructor, time.Hour))
	instructor := dialWS(t, srv, instructorHeader)

	writeFrame(t, student, protocol.TypeJoinActivity, "act1")
	expectType(t, student, protocol.TypeParticipantCount)

	writeFrame(t, student, protocol.TypeStartSession, "act1")
	got := expectType(t, student, protocol.TypeError)
	if !strings.Contains(string(got.Payload), "PERMISSION_DENIED") {
		t.Fatalf("error payload = %s, expected PERMISSION_DENIED", string(got.Payload))
	}

	writeFrame(t, instructor, protocol.TypeStartSession, "act1")
	expectType(t, student, protocol.TypeSessionStarted)
}
