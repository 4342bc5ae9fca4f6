package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"qna-coin-ledger-go/internal/api"
	"qna-coin-ledger-go/internal/relay"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

const (
	maxRelaysPerConn      = 32
	defaultWSWriteTimeout = 10 * time.Second
)

var errPeerClosed = errors.New("websocket peer closed")

// wsFrame is what the client sends: subscribe or unsubscribe to one counter
type wsFrame struct {
	Type    string     `json:"type"`
	Kind    relay.Kind `json:"kind"`
	ScopeId string     `json:"scope_id"`
}

// wsEvent is what the server sends
type wsEvent struct {
	Type    string     `json:"type"`
	Kind    relay.Kind `json:"kind,omitempty"`
	ScopeId string     `json:"scope_id,omitempty"`
	Value   int        `json:"value"`
	Error   string     `json:"error,omitempty"`
}

// wsPeer serializes writes to one connection. Every write is bounded by writeTimeout
// and the first failed write marks the peer dead, so later sends return at once.
type wsPeer struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	enc          *json.Encoder
	writeTimeout time.Duration
	closed       atomic.Bool
	err          error
}

func newWSPeer(conn *websocket.Conn, writeTimeout time.Duration) *wsPeer {
	if writeTimeout <= 0 {
		writeTimeout = defaultWSWriteTimeout
	}
	return &wsPeer{conn: conn, enc: json.NewEncoder(conn), writeTimeout: writeTimeout}
}

func (p *wsPeer) send(ev wsEvent) error {
	if p.closed.Load() {
		return errPeerClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	if err := p.enc.Encode(ev); err != nil {
		p.err = err
		p.closed.Store(true)
		// ends the read loop so the handler releases its relays
		_ = p.conn.Close()
		return err
	}
	return nil
}

// shutdown fails any write in flight and every later send
func (p *wsPeer) shutdown() {
	p.closed.Store(true)
	_ = p.conn.SetWriteDeadline(time.Now())
}

func relayKey(kind relay.Kind, scopeId string) string {
	return string(kind) + ":" + scopeId
}

func (s *Server) streamCounts(c *gin.Context) {
	sess := currentSession(c)
	websocket.Handler(func(conn *websocket.Conn) {
		s.handleWSConn(conn, sess.AccountId)
	}).ServeHTTP(c.Writer, c.Request)
}

// handleWSConn streams counter values for the relays the client subscribes to. Unread
// counters are always scoped to the signed-in account.
func (s *Server) handleWSConn(conn *websocket.Conn, accountId string) {
	ctx, cancel := context.WithCancel(context.Background())
	peer := newWSPeer(conn, s.cfg.WSWriteTimeout)
	relays := make(map[string]*relay.Relay)
	defer func() {
		cancel()
		peer.shutdown()
		for _, r := range relays {
			r.Stop()
		}
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if !errors.Is(err, io.EOF) {
				zap.L().Debug("WebSocket closed", zap.String("account_id", accountId), zap.Error(err))
			}
			return
		}

		scopeId := frame.ScopeId
		if frame.Kind == relay.KindUnreadMessages || frame.Kind == relay.KindUnreadNotifications {
			scopeId = accountId
		}
		key := relayKey(frame.Kind, scopeId)

		switch frame.Type {
		case "subscribe":
			if _, ok := relays[key]; ok {
				continue
			}
			if len(relays) >= maxRelaysPerConn {
				_ = peer.send(wsEvent{Type: "error", Kind: frame.Kind, ScopeId: scopeId, Error: "too many subscriptions"})
				continue
			}
			kind := frame.Kind
			r, err := s.svc.StartRelay(ctx, kind, scopeId, func(v int) {
				if err := peer.send(wsEvent{Type: "count", Kind: kind, ScopeId: scopeId, Value: v}); err != nil && !errors.Is(err, errPeerClosed) {
					zap.L().Debug("WebSocket write failed", zap.String("account_id", accountId), zap.Error(err))
				}
			})
			if err != nil {
				_ = peer.send(wsEvent{Type: "error", Kind: frame.Kind, ScopeId: scopeId, Error: api.UserMessage(err)})
				continue
			}
			relays[key] = r
		case "unsubscribe":
			if r, ok := relays[key]; ok {
				r.Stop()
				delete(relays, key)
			}
		default:
			_ = peer.send(wsEvent{Type: "error", Error: "unsupported frame type"})
		}
	}
}
