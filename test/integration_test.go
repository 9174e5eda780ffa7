package test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/ws"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// stack wires the whole server the way cmd/server does, on throwaway
// storage, with the background workers actually running.
type stack struct {
	server *httptest.Server
	tokens *auth.TokenManager
	repo   repositories.IMessageRepository
}

func newStack(t *testing.T, authRequired bool) stack {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromString("ERROR")

	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	index, err := search.NewInMemoryMessageIndex()
	req.NoError(err)
	t.Cleanup(func() { _ = index.Close() })

	monitoring := observability.NewMonitoringManager()
	tokens := auth.NewTokenManager("integration-secret", time.Hour)
	gate := auth.NewGate(tokens, nil, true, log)
	censor, err := moderation.NewCensor([]string{"badword"}, '*')
	req.NoError(err)

	messageRepository := repositories.NewMessageRepository(db, log, lo.ToPtr(100))
	userRepository := repositories.NewUserRepository(db)

	registry := runtime.NewRoomRegistry(monitoring, log)
	presence := runtime.NewPresenceService(registry)
	persistQueue := make(chan domain.PersistJob, 64)
	indexQueue := make(chan repositories.DiskMessage, 64)
	router := runtime.NewMessageRouter(registry, censor, persistQueue, monitoring, log)

	sup := workers.NewSupervisor(log, monitoring, 50*time.Millisecond)
	sup.Add(
		workers.NewPersistWorker(persistQueue, messageRepository, indexQueue, monitoring, log),
		workers.NewIndexWorker(indexQueue, index, log),
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sup.Run(ctx)

	authService := services.NewAuthService(userRepository, tokens)
	chatService := services.NewChatService(messageRepository, userRepository, index)

	opts := ws.ClientOptions{
		BufferSize:      16,
		DeliveryTimeout: time.Second,
		WriteTimeout:    time.Second,
		PongTimeout:     time.Minute,
		MaxMessageSize:  4096,
	}

	mux := http.NewServeMux()
	ws.NewHandler(gate, registry, presence, router, monitoring, opts, authRequired, log).Register(mux)
	rest.NewHandler(authService, chatService, gate, monitoring, 1<<20, log).Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return stack{server: server, tokens: tokens, repo: messageRepository}
}

func (s stack) wsURL(path string) string {
	return strings.Replace(s.server.URL, "http", "ws", 1) + path
}

func (s stack) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s stack) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func Test_Scenario_FullConversation(t *testing.T) {
	req := require.New(t)
	s := newStack(t, false)

	// Register both participants over REST.
	resp := s.postJSON(t, "/api/register", map[string]string{
		"username": "alice", "password": "ComplexPass123!",
	})
	req.Equal(http.StatusCreated, resp.StatusCode)
	resp = s.postJSON(t, "/api/register", map[string]string{
		"username": "bob", "password": "ComplexPass456!",
	})
	req.Equal(http.StatusCreated, resp.StatusCode)

	// Login returns a usable token.
	resp = s.postJSON(t, "/api/login", map[string]string{
		"username": "alice", "password": "ComplexPass123!",
	})
	req.Equal(http.StatusOK, resp.StatusCode)
	var loginBody map[string]string
	req.NoError(json.NewDecoder(resp.Body).Decode(&loginBody))
	req.NotEmpty(loginBody["token"])

	// Both sides join the conversation room.
	alice := s.dial(t, "/ws/chat/alice_bob?token="+loginBody["token"])
	bob := s.dial(t, "/ws/chat/alice_bob")
	time.Sleep(100 * time.Millisecond)

	req.NoError(alice.WriteMessage(websocket.TextMessage,
		[]byte(`{"message":"hello bob, what a badword day","sender":"alice"}`)))

	// Own echo and peer delivery, censored in both.
	for _, conn := range []*websocket.Conn{alice, bob} {
		got := readEvent(t, conn)
		req.Equal("message", got["type"])
		req.Equal("hello bob, what a ******* day", got["message"])
		req.Equal("alice", got["sender"])
	}

	// The message lands on disk shortly after the broadcast.
	req.Eventually(func() bool {
		stored, _, err := s.repo.GetMessages("alice_bob", nil)
		return err == nil && len(stored) == 1
	}, 3*time.Second, 50*time.Millisecond)

	// History over REST, receiver derived from the room key.
	resp2, err := http.Get(s.server.URL + "/api/messages?room=alice_bob")
	req.NoError(err)
	defer resp2.Body.Close()
	req.Equal(http.StatusOK, resp2.StatusCode)
	var history struct {
		Messages []services.HistoryMessage `json:"messages"`
	}
	req.NoError(json.NewDecoder(resp2.Body).Decode(&history))
	req.Len(history.Messages, 1)
	req.Equal("bob", history.Messages[0].Receiver)
	req.Equal("hello bob, what a ******* day", history.Messages[0].Content)

	// Full-text search finds it once the index worker caught up.
	req.Eventually(func() bool {
		resp, err := http.Get(s.server.URL + "/api/search?q=hello&room=alice_bob")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var result struct {
			Hits []search.Hit `json:"hits"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return false
		}
		return len(result.Hits) == 1
	}, 3*time.Second, 50*time.Millisecond)
}

func Test_Scenario_PresenceLifecycle(t *testing.T) {
	req := require.New(t)
	s := newStack(t, false)

	watcher := s.dial(t, "/ws/status/watcher")
	got := readEvent(t, watcher)
	req.Equal("watcher", got["user"])
	req.Equal("online", got["status"])

	alice := s.dial(t, "/ws/status/alice")
	got = readEvent(t, watcher)
	req.Equal("alice", got["user"])
	req.Equal("online", got["status"])

	req.NoError(alice.Close())
	got = readEvent(t, watcher)
	req.Equal("alice", got["user"])
	req.Equal("offline", got["status"])
}

func Test_Scenario_TypingAndReceiptsAreEphemeral(t *testing.T) {
	req := require.New(t)
	s := newStack(t, false)

	alice := s.dial(t, "/ws/chat/alice_bob")
	bob := s.dial(t, "/ws/chat/alice_bob")
	time.Sleep(100 * time.Millisecond)

	req.NoError(alice.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"typing","sender":"alice","typing":true}`)))
	got := readEvent(t, bob)
	req.Equal("typing", got["type"])

	req.NoError(bob.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"read_receipt","sender":"bob"}`)))
	got = readEvent(t, alice)
	req.Equal("read_receipt", got["type"])

	// Nothing ephemeral reaches storage.
	time.Sleep(200 * time.Millisecond)
	stored, _, err := s.repo.GetMessages("alice_bob", nil)
	req.NoError(err)
	req.Empty(stored)
}

func Test_Scenario_LockedDownDeployment(t *testing.T) {
	req := require.New(t)
	s := newStack(t, true)

	// Anonymous is turned away.
	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL("/ws/chat/alice_bob"), nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	// A token for an outsider is turned away too.
	token, err := s.tokens.Generate("carol", []string{"user"})
	req.NoError(err)
	_, resp, err = websocket.DefaultDialer.Dial(s.wsURL("/ws/chat/alice_bob?token="+token), nil)
	req.Error(err)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	// A participant with a valid token gets in.
	token, err = s.tokens.Generate("alice", []string{"user"})
	req.NoError(err)
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL("/ws/chat/alice_bob?token="+token), nil)
	req.NoError(err)
	_ = conn.Close()
}

func Test_Scenario_MalformedTrafficNeverKillsTheSession(t *testing.T) {
	req := require.New(t)
	s := newStack(t, false)

	alice := s.dial(t, "/ws/chat/alice_bob")

	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`{broken`)))
	got := readEvent(t, alice)
	req.Equal("Invalid JSON format", got["error"])

	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`{"message":"","sender":"alice"}`)))
	got = readEvent(t, alice)
	req.Equal("Invalid message format", got["error"])

	// The same connection still chats normally afterwards.
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`{"message":"still alive","sender":"alice"}`)))
	got = readEvent(t, alice)
	req.Equal("still alive", got["message"])
}
