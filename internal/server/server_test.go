package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"qna-coin-ledger-go/internal/api"
	"qna-coin-ledger-go/internal/database"
	"qna-coin-ledger-go/internal/listener"
	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/realtime"
	"qna-coin-ledger-go/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	s, _ := setupTestServerWithHub(t)
	return s
}

func setupTestServerWithHub(t *testing.T) (*Server, *realtime.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "server.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	hub := realtime.NewHub(64)
	changes := listener.NewChangeListener(listener.ChangeListenerConfig{
		DbService:       db,
		Hub:             hub,
		LookbackWindow:  time.Minute,
		PollingInterval: 20 * time.Millisecond,
		CleanupInterval: time.Minute,
	})
	require.NoError(t, changes.Start(ctx))
	t.Cleanup(changes.Stop)

	svc, err := api.NewLedgerService(api.Config{
		Store:        db,
		Hub:          hub,
		InitialCoins: 20,
		StoreTimeout: 5 * time.Second,
		Wake:         changes.Wake,
	})
	require.NoError(t, err)

	return New(svc, models.ServerConfig{
		CorsOrigin:     "*",
		WriteRPS:       1000,
		WriteBurst:     1000,
		WSWriteTimeout: 100 * time.Millisecond,
	}), hub
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func signUp(t *testing.T, s *Server, name string) api.AuthResult {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/auth/signup", "", api.SignUpRequest{
		Name:     name,
		Email:    strings.ToLower(name) + "@example.com",
		Password: "long enough password",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result api.AuthResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	return result
}

func TestHealthz(t *testing.T) {
	s := setupTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestAuthRequired(t *testing.T) {
	s := setupTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/me", "not-a-session", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignUpLoginLogout(t *testing.T) {
	s := setupTestServer(t)
	alice := signUp(t, s, "Alice")
	assert.Equal(t, int64(20), alice.Profile.Balance)

	w := doJSON(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "long enough password",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var login api.AuthResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))

	w = doJSON(t, s, http.MethodGet, "/api/me", login.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/auth/logout", login.Token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, s, http.MethodGet, "/api/me", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEngagementFlow(t *testing.T) {
	s := setupTestServer(t)
	alice := signUp(t, s, "Alice")
	bob := signUp(t, s, "Bob")

	w := doJSON(t, s, http.MethodPost, "/api/questions", alice.Token, api.PostQuestionRequest{
		Title: "Best hydration for a rye loaf?",
		Tags:  []string{"bread"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var question models.Question
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &question))

	w = doJSON(t, s, http.MethodPost, "/api/questions/"+question.Id+"/like", alice.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/questions/"+question.Id+"/like", bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var liked models.ActionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &liked))
	assert.True(t, liked.Liked)

	w = doJSON(t, s, http.MethodGet, "/api/me/balance", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"balance": 30}`, w.Body.String())

	w = doJSON(t, s, http.MethodPost, "/api/questions/"+question.Id+"/answers", bob.Token, map[string]string{"body": "About 80%"})
	require.Equal(t, http.StatusCreated, w.Code)
	var answer models.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &answer))

	w = doJSON(t, s, http.MethodDelete, "/api/answers/"+answer.Id, alice.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/api/answers/"+answer.Id, bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var deleted models.ActionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deleted))
	assert.Equal(t, int64(11), deleted.Balance)

	w = doJSON(t, s, http.MethodGet, "/api/notifications", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestInsufficientFundsResponse(t *testing.T) {
	s := setupTestServer(t)
	alice := signUp(t, s, "Alice")

	w := doJSON(t, s, http.MethodPost, "/api/questions", alice.Token, api.PostQuestionRequest{Title: "One"})
	require.Equal(t, http.StatusCreated, w.Code)
	var question models.Question
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &question))

	// Five profile updates spend all 20 coins
	for _, name := range []string{"A1", "A2", "A3", "A4", "A5"} {
		w = doJSON(t, s, http.MethodPatch, "/api/me", alice.Token, map[string]string{"name": name})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodDelete, "/api/questions/"+question.Id, alice.Token, nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(5), body["required"])
	assert.Equal(t, float64(0), body["current"])
}

func TestWriteRateLimit(t *testing.T) {
	s := setupTestServer(t)
	s.limiter = NewIPRateLimiter(0, 1)
	s.router = gin.New()
	s.setupRoutes()

	w := doJSON(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@example.com", "password": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = doJSON(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@example.com", "password": "x"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(api.ErrInvalidInput))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(api.ErrRateLimited))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestWebSocketStreamsUnreadCount(t *testing.T) {
	s := setupTestServer(t)
	alice := signUp(t, s, "Alice")
	bob := signUp(t, s, "Bob")

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + bob.Token
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	read := func() wsEvent {
		t.Helper()
		_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
		var ev wsEvent
		require.NoError(t, json.NewDecoder(conn).Decode(&ev))
		return ev
	}

	// The scope is ignored for inbox counters
	require.NoError(t, json.NewEncoder(conn).Encode(wsFrame{Type: "subscribe", Kind: relay.KindUnreadMessages, ScopeId: alice.Profile.Id}))
	ev := read()
	assert.Equal(t, "count", ev.Type)
	assert.Equal(t, bob.Profile.Id, ev.ScopeId)
	assert.Equal(t, 0, ev.Value)

	w := doJSON(t, s, http.MethodPost, "/api/messages", alice.Token, map[string]string{
		"recipient_id": bob.Profile.Id, "body": "hi Bob",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	ev = read()
	assert.Equal(t, relay.KindUnreadMessages, ev.Kind)
	assert.Equal(t, 1, ev.Value)
}

// dialStalled opens a websocket with a tiny receive buffer and subscribes to the unread
// message counter. The caller never reads from it.
func dialStalled(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	tcp, err := net.Dial("tcp", srv.Listener.Addr().String())
	require.NoError(t, err)
	_ = tcp.(*net.TCPConn).SetReadBuffer(1024)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	cfg, err := websocket.NewConfig(wsURL, srv.URL)
	require.NoError(t, err)
	conn, err := websocket.NewClient(cfg, tcp)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, json.NewEncoder(conn).Encode(wsFrame{Type: "subscribe", Kind: relay.KindUnreadMessages}))
	return conn
}

// flood publishes unread message inserts for accountId until stop is closed
func flood(hub *realtime.Hub, accountId string, stop <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for seq := int64(1 << 40); ; seq++ {
			select {
			case <-stop:
				return
			default:
			}
			hub.Publish(models.ChangeEvent{
				Seq:       seq,
				Id:        fmt.Sprintf("flood-%d", seq),
				Relation:  models.RelationMessages,
				Type:      models.EventInsert,
				EntityId:  fmt.Sprintf("msg-%d", seq),
				AccountId: accountId,
				After:     models.RowState{Exists: true, Unread: true},
			})
		}
	}()
	return done
}

func TestWebSocketReleasesRelaysOfStalledPeer(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{name: "unsubscribe", frame: []byte(`{"type":"unsubscribe","kind":"unread_messages"}`)},
		{name: "disconnect", frame: []byte("not json")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, hub := setupTestServerWithHub(t)
			bob := signUp(t, s, "Bob")

			srv := httptest.NewServer(s.Handler())
			t.Cleanup(srv.Close)

			conn := dialStalled(t, srv, bob.Token)
			require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

			stop := make(chan struct{})
			done := flood(hub, bob.Profile.Id, stop)
			time.Sleep(time.Second)

			_, err := conn.Write(tt.frame)
			require.NoError(t, err)
			close(stop)
			<-done

			assert.Eventually(t, func() bool { return hub.SubscriberCount() == 0 }, 3*time.Second, 20*time.Millisecond)
		})
	}
}
