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

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qna-coin-ledger-go/internal/rules"
	"qna-coin-ledger-go/internal/store"

	"go.uber.org/zap"
)

const DefaultTimeout = 10 * time.Second

// State is where a mutation is in its lifecycle
type State int

const (
	StateIdle State = iota
	StatePending
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Request describes one mutating action.
//
// Decide reads the current state and asks the rules engine; it runs again on the
// conflict retry. Apply reflects an allowed decision in the view. Remote performs the
// authoritative write. NoopErrors are store errors meaning the target already has the
// requested state, for example a like that another surface created first.
type Request struct {
	Action     rules.Action
	ActorId    string
	TargetId   string
	Key        string
	Scope      Scope
	Decide     func(ctx context.Context) (rules.Decision, error)
	Apply      func(v *View, d rules.Decision)
	Remote     func(ctx context.Context, d rules.Decision) error
	NoopErrors []error
}

// Result reports how a mutation ended
type Result struct {
	Decision rules.Decision
	State    State
	Noop     bool
	Attempts int
}

// Coordinator applies actions optimistically to a View and rolls them back when the
// store rejects them. Requests that share a key run one at a time.
type Coordinator struct {
	view    *View
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan struct{}
}

func New(view *View, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		view:    view,
		timeout: timeout,
		pending: make(map[string]chan struct{}),
	}
}

func (c *Coordinator) View() *View {
	return c.view
}

// Pending reports whether a mutation on key is in flight
func (c *Coordinator) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// Idle reports whether no mutation is in flight
func (c *Coordinator) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) == 0
}

// acquire waits until no mutation holds key, then claims it. If ctx ends while another
// mutation still holds the key the caller gets ErrActionInProgress.
func (c *Coordinator) acquire(ctx context.Context, key string) error {
	for {
		c.mu.Lock()
		busy, ok := c.pending[key]
		if !ok {
			c.pending[key] = make(chan struct{})
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", store.ErrActionInProgress, key)
		}
	}
}

func (c *Coordinator) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if done, ok := c.pending[key]; ok {
		close(done)
		delete(c.pending, key)
	}
}

// Execute runs the request through Idle -> Pending -> Committed | RolledBack.
func (c *Coordinator) Execute(ctx context.Context, req Request) (Result, error) {
	key := req.Key
	if key == "" {
		key = string(req.Action) + ":" + req.TargetId
	}

	if err := c.acquire(ctx, key); err != nil {
		c.logFailure(req, err)
		return Result{State: StateIdle}, err
	}
	defer c.release(key)

	var result Result
	for attempt := 1; attempt <= 2; attempt++ {
		result.Attempts = attempt

		err := c.attempt(ctx, req, &result)
		if err == nil {
			return result, nil
		}
		if store.IsRetryable(err) && attempt == 1 {
			zap.L().Debug("Retrying after conflict",
				zap.String("actor_id", req.ActorId),
				zap.String("action", string(req.Action)),
				zap.String("target_id", req.TargetId))
			continue
		}
		c.logFailure(req, err)
		return result, err
	}
	return result, nil
}

func (c *Coordinator) attempt(ctx context.Context, req Request, result *Result) error {
	// The store write must outlive a cancelled caller; only the timeout bounds it
	remoteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	decision, err := req.Decide(remoteCtx)
	if err != nil {
		result.State = StateIdle
		return mapTimeout(err)
	}
	result.Decision = decision
	if decision.Err != nil {
		result.State = StateIdle
		return decision.Err
	}
	if decision.Noop {
		result.State = StateCommitted
		result.Noop = true
		return nil
	}

	snapshot := c.view.Capture(req.Scope)
	result.State = StatePending
	if req.Apply != nil {
		req.Apply(c.view, decision)
	}

	err = req.Remote(remoteCtx, decision)
	if err == nil {
		result.State = StateCommitted
		return nil
	}

	c.view.Restore(snapshot)
	for _, noop := range req.NoopErrors {
		if errors.Is(err, noop) {
			result.State = StateCommitted
			result.Noop = true
			return nil
		}
	}
	result.State = StateRolledBack
	return mapTimeout(err)
}

func mapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrNetwork, err)
	}
	return err
}

func (c *Coordinator) logFailure(req Request, err error) {
	fields := []zap.Field{
		zap.String("actor_id", req.ActorId),
		zap.String("action", string(req.Action)),
		zap.String("target_id", req.TargetId),
		zap.Error(err),
	}
	// Rejected preconditions are expected outcomes, not faults
	if errors.Is(err, store.ErrSelfActionForbidden) || errors.Is(err, store.ErrPermissionDenied) ||
		errors.Is(err, store.ErrInsufficientFunds) || errors.Is(err, store.ErrNameTaken) {
		zap.L().Info("Action rejected", fields...)
		return
	}
	zap.L().Error("Action failed", fields...)
}
