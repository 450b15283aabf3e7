package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/classpulse/live/internal/platform/errors"
	"github.com/classpulse/live/internal/platform/requestctx"
	"github.com/classpulse/live/internal/services/live/protocol"
	"github.com/classpulse/live/internal/services/live/registry"
	"github.com/classpulse/live/internal/services/live/rooms"
	"github.com/classpulse/live/internal/services/live/session"
)

const (
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	// maxMessageBytes bounds a whole websocket message; the frame payload
	// inside it is capped separately by the protocol.
	maxMessageBytes = 4 * protocol.MaxPayloadBytes
)

// handlerOptions configures the websocket routes.
type handlerOptions struct {
	authorizer     wsAuthorizer
	allowedOrigins []string
	outboxSize     int
}

// NewHandler creates live routes over fresh in-memory state with identity
// checks and origin filtering off.
func NewHandler() http.Handler {
	return newHandler(newLiveRouter(false), handlerOptions{})
}

func newLiveRouter(requireControlRole bool) *Router {
	return NewRouter(registry.New(nil), rooms.NewTracker(), session.NewStore(nil), requireControlRole)
}

func newHandler(router *Router, opts handlerOptions) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsServer := websocket.Server{
		Handshake: func(config *websocket.Config, r *http.Request) error {
			return checkOrigin(config, r, opts.allowedOrigins)
		},
		Handler: func(conn *websocket.Conn) {
			handleWSConn(conn, router, opts.outboxSize)
		},
	}

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if opts.authorizer != nil {
			token := accessTokenFromRequest(r)
			if token == "" {
				log.Printf("live: websocket unauthorized: missing token for host=%q remote=%s", r.Host, r.RemoteAddr)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			identity, err := opts.authorizer.Authenticate(token)
			if err != nil {
				log.Printf("live: websocket unauthorized for host=%q remote=%s err=%v", r.Host, r.RemoteAddr, err)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			r = r.WithContext(requestctx.WithIdentity(r.Context(), requestctx.Identity{
				ParticipantID: identity.ParticipantID,
				Role:          identity.Role,
			}))
		}

		wsServer.ServeHTTP(w, r)
	})

	return mux
}

// checkOrigin accepts requests without an Origin header and, when an
// allow-list is configured, only listed browser origins.
func checkOrigin(config *websocket.Config, r *http.Request, allowed []string) error {
	raw := strings.TrimSpace(r.Header.Get("Origin"))
	if raw == "" {
		return nil
	}
	origin, err := websocket.Origin(config, r)
	if err != nil {
		return fmt.Errorf("parse origin: %w", err)
	}
	config.Origin = origin
	if len(allowed) == 0 || slices.Contains(allowed, strings.TrimRight(raw, "/")) {
		return nil
	}
	log.Printf("live: websocket origin rejected origin=%q remote=%s", raw, r.RemoteAddr)
	return fmt.Errorf("origin %q not allowed", raw)
}

func identityFromConn(conn *websocket.Conn) registry.Identity {
	request := conn.Request()
	if request == nil {
		return registry.Identity{}
	}
	identity, _ := requestctx.IdentityFromContext(request.Context())
	return registry.Identity{ParticipantID: identity.ParticipantID, Role: identity.Role}
}

func handleWSConn(conn *websocket.Conn, router *Router, outboxSize int) {
	conn.MaxPayloadBytes = maxMessageBytes
	conn.PayloadType = websocket.TextFrame

	peer := newWSPeer(outboxSize)
	go peer.writeLoop(conn)

	connectionID, err := router.Connect(peer, identityFromConn(conn))
	if err != nil {
		log.Printf("live: register connection: %v", err)
		peer.finish()
		peer.wait()
		return
	}
	defer func() {
		router.Disconnect(connectionID)
		peer.finish()
		peer.wait()
	}()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame protocol.Frame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				peer.Send(protocol.ErrorFrame("", apperrors.New(apperrors.CodeInvalidArgument, "payload too large")))
				continue
			}
			if !isDecodeError(err) {
				return
			}
			decodeErrors++
			peer.Send(protocol.ErrorFrame("", apperrors.New(apperrors.CodeInvalidArgument, "invalid frame payload")))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			peer.Send(protocol.ErrorFrame(frame.RequestID, apperrors.New(apperrors.CodeResourceExhausted, "rate limit exceeded")))
			return
		}

		router.Dispatch(ctx, connectionID, frame)
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
