package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/lobby/internal/platform/errors"
	"github.com/louisbranch/lobby/internal/platform/id"
	"github.com/louisbranch/lobby/internal/services/lobby/room"
	"golang.org/x/net/websocket"
)

// NewHandler creates the lobby routes backed by dispatcher. An empty
// allowedOrigin permits any origin on the read-only HTTP views.
func NewHandler(dispatcher *Dispatcher, allowedOrigin string) http.Handler {
	allowedOrigin = strings.TrimSpace(allowedOrigin)
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, dispatcher)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		if !allowRead(w, r, allowedOrigin) {
			return
		}
		roomName := room.NormalizeRoomName(r.URL.Query().Get("room"))
		if roomName == "" {
			http.Error(w, "room is required", http.StatusBadRequest)
			return
		}
		users, ok := dispatcher.Registry().ListUsers(roomName, false)
		if !ok || users == nil {
			users = []room.User{}
		}
		writeJSON(w, users)
	})

	mux.HandleFunc("/activity", func(w http.ResponseWriter, r *http.Request) {
		if !allowRead(w, r, allowedOrigin) {
			return
		}
		if dispatcher.store == nil {
			http.Error(w, "activity log is not configured", http.StatusServiceUnavailable)
			return
		}
		roomName := room.NormalizeRoomName(r.URL.Query().Get("room"))
		if roomName == "" {
			http.Error(w, "room is required", http.StatusBadRequest)
			return
		}
		limit := defaultActivityLimit
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = min(parsed, maxActivityLimit)
		}

		entries, err := dispatcher.store.ListActivity(r.Context(), roomName, limit)
		if err != nil {
			log.Printf("lobby: list activity room=%q err=%v", roomName, err)
			http.Error(w, "activity lookup failed", http.StatusInternalServerError)
			return
		}
		views := make([]activityView, 0, len(entries))
		for _, entry := range entries {
			views = append(views, activityView{
				Room:       entry.Room,
				Username:   entry.Username,
				LogKey:     entry.LogKey,
				OccurredAt: entry.OccurredAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, views)
	})

	return mux
}

func allowRead(w http.ResponseWriter, r *http.Request, allowedOrigin string) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("lobby: write json response: %v", err)
	}
}

func handleWSConn(conn *websocket.Conn, dispatcher *Dispatcher) {
	defer func() {
		_ = conn.Close()
	}()

	connectionID, err := id.NewID()
	if err != nil {
		log.Printf("lobby: generate connection id: %v", err)
		return
	}
	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	decoder := json.NewDecoder(conn)
	peer := newWSPeer(connectionID, json.NewEncoder(conn), conn)
	dispatcher.peers.register(peer)
	defer func() {
		dispatcher.disconnect(context.WithoutCancel(ctx), connectionID)
		dispatcher.peers.unregister(connectionID)
		peer.close()
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr) {
				// Broken transport rather than a bad frame.
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "", "INVALID_ARGUMENT", "invalid frame payload", nil)
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large", nil)
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded", nil)
			return
		}

		eventType := strings.TrimSpace(frame.Type)
		if eventType == "" || eventType == eventDisconnect {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type", nil)
			continue
		}

		var payload eventPayload
		if len(frame.Payload) > 0 && string(frame.Payload) != "null" {
			if err := json.Unmarshal(frame.Payload, &payload); err != nil {
				_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid "+eventType+" payload", nil)
				continue
			}
		}

		if err := dispatcher.dispatch(ctx, connectionID, eventType, payload); err != nil {
			var (
				domainErr *apperrors.Error
				details   map[string]string
			)
			if errors.As(err, &domainErr) {
				details = domainErr.Metadata
			}
			_ = writeWSError(peer, frame.RequestID, apperrors.GetCode(err).FrameCode(), err.Error(), details)
		}
	}
}

func writeWSError(peer *wsPeer, requestID string, code string, message string, details map[string]string) error {
	return peer.writeFrame(wsFrame{
		Type:      eventError,
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code,
				Message:   message,
				Retryable: false,
				Details:   details,
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
