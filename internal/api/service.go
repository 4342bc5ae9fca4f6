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

package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qna-coin-ledger-go/internal/coordinator"
	"qna-coin-ledger-go/internal/ratelimit"
	"qna-coin-ledger-go/internal/realtime"
	"qna-coin-ledger-go/internal/relay"
	"qna-coin-ledger-go/internal/rules"
	"qna-coin-ledger-go/internal/session"
	"qna-coin-ledger-go/internal/store"

	"go.uber.org/zap"
)

const defaultCoordinatorIdleTimeout = 30 * time.Minute

// Config contains the collaborators of LedgerService
type Config struct {
	Store         store.LedgerStore
	Engine        *rules.Engine
	Hub           *realtime.Hub
	Sessions      *session.Manager
	LoginLimiter  *ratelimit.FixedWindow
	SignupLimiter *ratelimit.FixedWindow
	InitialCoins  int64
	StoreTimeout  time.Duration
	// CoordinatorIdleTimeout is how long an actor's coordinator and view are kept after
	// their last action
	CoordinatorIdleTimeout time.Duration
	// Wake is called after every committed write, usually ChangeListener.Wake
	Wake func()
}

// LedgerService exposes the engagement ledger to transports
type LedgerService struct {
	db           store.LedgerStore
	engine       *rules.Engine
	hub          *realtime.Hub
	baselines    *relay.Baselines
	sessions     *session.Manager
	limiters     map[LimitKind]*ratelimit.FixedWindow
	initialCoins int64
	storeTimeout time.Duration
	wake         func()

	mu              sync.Mutex
	coordinators    map[string]*actorCoordinator
	coordinatorIdle time.Duration
	now             func() time.Time
}

type actorCoordinator struct {
	coord    *coordinator.Coordinator
	lastUsed time.Time
}

func NewLedgerService(cfg Config) (*LedgerService, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	engine := cfg.Engine
	if engine == nil {
		engine = rules.NewEngine(rules.DefaultCosts())
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = session.NewManager(0)
	}
	login := cfg.LoginLimiter
	if login == nil {
		login = ratelimit.NewFixedWindow(string(LimitLogin), 5, 15*time.Minute)
	}
	signup := cfg.SignupLimiter
	if signup == nil {
		signup = ratelimit.NewFixedWindow(string(LimitSignup), 3, time.Hour)
	}
	wake := cfg.Wake
	if wake == nil {
		wake = func() {}
	}
	coordinatorIdle := cfg.CoordinatorIdleTimeout
	if coordinatorIdle <= 0 {
		coordinatorIdle = defaultCoordinatorIdleTimeout
	}

	return &LedgerService{
		db:           cfg.Store,
		engine:       engine,
		hub:          cfg.Hub,
		baselines:    relay.NewBaselines(cfg.Store),
		sessions:     sessions,
		limiters:     map[LimitKind]*ratelimit.FixedWindow{LimitLogin: login, LimitSignup: signup},
		initialCoins: cfg.InitialCoins,
		storeTimeout: cfg.StoreTimeout,
		wake:         wake,

		coordinators:    make(map[string]*actorCoordinator),
		coordinatorIdle: coordinatorIdle,
		now:             time.Now,
	}, nil
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	_, err := s.db.LatestChangeSeq(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Sessions returns the session manager used by Login and Logout
func (s *LedgerService) Sessions() *session.Manager {
	return s.sessions
}

// coordinatorFor returns the actor's coordinator, creating it with an empty view on
// first use. Every surface of one actor shares it.
func (s *LedgerService) coordinatorFor(actorId string) *coordinator.Coordinator {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.coordinators[actorId]
	if !ok {
		entry = &actorCoordinator{coord: coordinator.New(coordinator.NewView(), s.storeTimeout)}
		s.coordinators[actorId] = entry
	}
	entry.lastUsed = s.now()
	return entry.coord
}

// EvictIdleCoordinators drops the coordinators of actors with nothing in flight that
// have not acted within the idle timeout. Their views are rebuilt from the store on
// next use.
func (s *LedgerService) EvictIdleCoordinators() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for actorId, entry := range s.coordinators {
		if now.Sub(entry.lastUsed) >= s.coordinatorIdle && entry.coord.Idle() {
			delete(s.coordinators, actorId)
			evicted++
		}
	}
	return evicted
}

// Run evicts idle coordinators on every tick until ctx is done
func (s *LedgerService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if evicted := s.EvictIdleCoordinators(); evicted > 0 {
				zap.L().Debug("Evicted idle coordinators", zap.Int("evicted", evicted))
			}
		case <-ctx.Done():
			return
		}
	}
}

// View returns the actor's local view of the ledger
func (s *LedgerService) View(actorId string) *coordinator.View {
	return s.coordinatorFor(actorId).View()
}

// loadActor reads the actor's account and records the balance in view
func (s *LedgerService) loadActor(ctx context.Context, view *coordinator.View, actorId string) (rules.Actor, error) {
	account, err := s.db.GetAccount(ctx, actorId)
	if err != nil {
		return rules.Actor{}, err
	}
	view.SetBalance(account.Id, account.Balance)
	return rules.Actor{Id: account.Id, IsAdmin: account.IsAdmin, Balance: account.Balance}, nil
}

// syncBalance records an account's stored balance in view. Anonymous owners are skipped.
func (s *LedgerService) syncBalance(ctx context.Context, view *coordinator.View, accountId string) error {
	if accountId == "" {
		return nil
	}
	balance, err := s.db.GetBalance(ctx, accountId)
	if err != nil {
		return err
	}
	view.SetBalance(accountId, balance)
	return nil
}
