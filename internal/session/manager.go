/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidSession = errors.New("session is invalid or expired")

// Session is the signed-in state of one client
type Session struct {
	Token     string
	AccountId string
	IsAdmin   bool
	CreatedAt time.Time
	LastSeen  time.Time
}

// Manager holds sessions in memory. A session ends on Invalidate or after IdleTimeout
// without use.
type Manager struct {
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 24 * time.Hour
	}
	return &Manager{
		idleTimeout: idleTimeout,
		now:         time.Now,
		sessions:    make(map[string]*Session),
	}
}

// Create starts a session for the account and returns it
func (m *Manager) Create(accountId string, isAdmin bool) Session {
	now := m.now()
	s := &Session{
		Token:     uuid.New().String(),
		AccountId: accountId,
		IsAdmin:   isAdmin,
		CreatedAt: now,
		LastSeen:  now,
	}

	m.mu.Lock()
	m.sessions[s.Token] = s
	m.mu.Unlock()

	zap.L().Debug("Session created", zap.String("account_id", accountId))
	return *s
}

// Get returns the session for token and refreshes its idle timer
func (m *Manager) Get(token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return Session{}, ErrInvalidSession
	}
	now := m.now()
	if now.Sub(s.LastSeen) >= m.idleTimeout {
		delete(m.sessions, token)
		return Session{}, ErrInvalidSession
	}
	s.LastSeen = now
	return *s, nil
}

// Invalidate ends the session. Unknown tokens are ignored.
func (m *Manager) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// InvalidateAccount ends every session belonging to accountId
func (m *Manager) InvalidateAccount(accountId string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ended := 0
	for token, s := range m.sessions {
		if s.AccountId == accountId {
			delete(m.sessions, token)
			ended++
		}
	}
	return ended
}

// Expire removes idle sessions and returns how many ended
func (m *Manager) Expire() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	expired := 0
	for token, s := range m.sessions {
		if now.Sub(s.LastSeen) >= m.idleTimeout {
			delete(m.sessions, token)
			expired++
		}
	}
	return expired
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run expires idle sessions on every tick until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if expired := m.Expire(); expired > 0 {
				zap.L().Debug("Expired idle sessions",
					zap.Int("expired", expired),
					zap.Int("remaining", m.Len()))
			}
		case <-ctx.Done():
			return
		}
	}
}
