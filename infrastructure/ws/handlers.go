package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/runtime"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler terminates the websocket endpoints. Every reject happens before
// the upgrade, with a plain HTTP status; past the upgrade, the connection
// only ends through session teardown.
type Handler struct {
	gate         *auth.Gate
	registry     contract.IRoomRegistry
	presence     contract.IPresence
	router       *runtime.MessageRouter
	monitoring   *observability.MonitoringManager
	opts         ClientOptions
	authRequired bool
	upgrader     websocket.Upgrader
	log          *slog.Logger
}

func NewHandler(
	gate *auth.Gate,
	registry contract.IRoomRegistry,
	presence contract.IPresence,
	router *runtime.MessageRouter,
	monitoring *observability.MonitoringManager,
	opts ClientOptions,
	authRequired bool,
	log *slog.Logger,
) *Handler {
	h := &Handler{
		gate:         gate,
		registry:     registry,
		presence:     presence,
		router:       router,
		monitoring:   monitoring,
		opts:         opts,
		authRequired: authRequired,
		log:          log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return gate.OriginAllowed(r.Header.Get("Origin"))
		},
	}
	return h
}

// Register mounts the websocket routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/chat/{room}", h.Chat)
	mux.HandleFunc("GET /ws/status/{user}", h.Status)
}

// Chat accepts a connection into a one-to-one conversation room.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	key, err := domain.ParseRoomKey(r.PathValue("room"))
	if err != nil {
		http.Error(w, "malformed room key", http.StatusBadRequest)
		return
	}

	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.authRequired && !key.Contains(identity) {
		http.Error(w, "identity is not a participant of this room", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied, including the origin reject.
		h.log.Debug("Upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	client := NewClient(conn, h.opts, h.log)
	session := NewSession(connID, client,
		func(ctx context.Context, raw []byte) {
			h.router.Dispatch(ctx, key, client, raw)
		},
		func() {
			h.registry.Leave(key, connID)
		},
		h.monitoring, h.log)

	h.registry.Join(key, connID, client)
	h.log.Info(fmt.Sprintf("Connection %s joined room %s", connID, key))

	session.Run(r.Context())
}

// Status accepts a connection into the global presence room and announces
// the user online for as long as the connection lives.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	if user == "" || user == "undefined" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}

	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.authRequired && identity != user {
		http.Error(w, "identity does not match the status subject", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	client := NewClient(conn, h.opts, h.log)
	session := NewSession(connID, client,
		func(ctx context.Context, raw []byte) {
			// The status endpoint is announce-only; inbound frames are noise.
		},
		func() {
			h.presence.Disconnect(context.WithoutCancel(r.Context()), connID, user)
		},
		h.monitoring, h.log)

	h.presence.Connect(r.Context(), connID, user, client)
	h.log.Info(fmt.Sprintf("User %s is online (connection %s)", user, connID))

	session.Run(r.Context())
}

// authenticate resolves the query token to an identity. Anonymous access is
// only a reject when the deployment is locked down.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := h.gate.Resolve(r.URL.Query().Get("token"))
	if h.authRequired && identity == auth.Anonymous {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return "", false
	}
	return identity, true
}
