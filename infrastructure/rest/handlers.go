// Package rest exposes the HTTP surface next to the websocket endpoints:
// account management, conversation history, search, avatars, and the
// operational stats snapshot.
package rest

import (
	"encoding/json"
	goerrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/services"
)

const defaultSearchLimit = 20

type Handler struct {
	authService    services.IAuthService
	chatService    services.IChatService
	gate           *auth.Gate
	monitoring     *observability.MonitoringManager
	maxAvatarBytes int64
	log            *slog.Logger
}

func NewHandler(
	authService services.IAuthService,
	chatService services.IChatService,
	gate *auth.Gate,
	monitoring *observability.MonitoringManager,
	maxAvatarBytes int64,
	log *slog.Logger,
) *Handler {
	return &Handler{
		authService:    authService,
		chatService:    chatService,
		gate:           gate,
		monitoring:     monitoring,
		maxAvatarBytes: maxAvatarBytes,
		log:            log,
	}
}

// Register mounts the REST routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", h.RegisterUser)
	mux.HandleFunc("POST /api/login", h.Login)
	mux.HandleFunc("GET /api/messages", h.Messages)
	mux.HandleFunc("GET /api/search", h.Search)
	mux.HandleFunc("POST /api/avatar", h.UploadAvatar)
	mux.HandleFunc("GET /api/avatar/{user}", h.Avatar)
	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /api/health", h.Health)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.authService.Register(body.Username, body.Password)
	switch {
	case goerrors.Is(err, errors.ErrUserAlreadyExists):
		writeError(w, http.StatusConflict, "username already taken")
	case goerrors.Is(err, errors.ErrInvalidPassword):
		writeError(w, http.StatusBadRequest, "username or password does not meet the rules")
	case err != nil:
		h.log.Error("Registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
	default:
		writeJSON(w, http.StatusCreated, tokenResponse{Token: token.String()})
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.authService.Login(body.Username, body.Password)
	if err != nil {
		// Same reply for unknown user and wrong password.
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token.String()})
}

type messagesResponse struct {
	Messages []services.HistoryMessage `json:"messages"`
	Cursor   *string                   `json:"cursor,omitempty"`
}

func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	key, err := domain.ParseRoomKey(r.URL.Query().Get("room"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed room key")
		return
	}

	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	page, next, err := h.chatService.History(key.String(), cursor)
	if err != nil {
		h.log.Error("History read failed", "room", key, "error", err)
		writeError(w, http.StatusInternalServerError, "could not read history")
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: page, Cursor: next})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}

	room := r.URL.Query().Get("room")
	if room != "" {
		if _, err := domain.ParseRoomKey(room); err != nil {
			writeError(w, http.StatusBadRequest, "malformed room key")
			return
		}
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	hits, err := h.chatService.Search(r.Context(), query, room, limit)
	if err != nil {
		h.log.Error("Search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.bearerIdentity(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAvatarBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "avatar too large")
		return
	}

	err = h.chatService.SaveAvatar(identity, data)
	switch {
	case goerrors.Is(err, errors.ErrNotAnImage):
		writeError(w, http.StatusUnsupportedMediaType, "avatar must be an image")
	case goerrors.Is(err, errors.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "unknown user")
	case err != nil:
		h.log.Error("Avatar upload failed", "user", identity, "error", err)
		writeError(w, http.StatusInternalServerError, "avatar upload failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) Avatar(w http.ResponseWriter, r *http.Request) {
	avatar, err := h.chatService.GetAvatar(r.PathValue("user"))
	if err != nil {
		writeError(w, http.StatusNotFound, "no avatar")
		return
	}
	w.Header().Set("Content-Type", avatar.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(avatar.Data)
}

func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitoring.Snapshot())
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// bearerIdentity resolves the Authorization header to an identity. Uploads
// always require a valid token, even on permissive deployments: an avatar
// belongs to an account.
func (h *Handler) bearerIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return "", false
	}
	identity := h.gate.Resolve(token)
	if identity == auth.Anonymous {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return "", false
	}
	return identity, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
