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

package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/realtime"

	"go.uber.org/zap"
)

// Kind names a derived counter
type Kind string

const (
	KindUnreadMessages      Kind = "unread_messages"
	KindUnreadNotifications Kind = "unread_notifications"
	KindAnswerCount         Kind = "answer_count"
	KindLikeCount           Kind = "like_count"
)

// FilterFor returns the filter behind a counter. scopeId is the viewer's account id for
// unread counters and the question id for answer and like counts.
func FilterFor(kind Kind, scopeId string) (models.Filter, error) {
	switch kind {
	case KindUnreadMessages:
		return models.Filter{Relation: models.RelationMessages, AccountId: scopeId, Unread: true}, nil
	case KindUnreadNotifications:
		return models.Filter{Relation: models.RelationNotifications, AccountId: scopeId, Unread: true}, nil
	case KindAnswerCount:
		return models.Filter{Relation: models.RelationAnswers, ParentId: scopeId}, nil
	case KindLikeCount:
		return models.Filter{Relation: models.RelationLikes, ParentId: scopeId}, nil
	}
	return models.Filter{}, fmt.Errorf("unknown counter kind %q", kind)
}

func counted(filter models.Filter, state models.RowState) bool {
	return state.Exists && (!filter.Unread || state.Unread)
}

// Delta is how much an event moves the counter behind filter
func Delta(filter models.Filter, ev models.ChangeEvent) int {
	if !filter.Matches(ev) {
		return 0
	}
	delta := 0
	if counted(filter, ev.After) {
		delta++
	}
	if counted(filter, ev.Before) {
		delta--
	}
	return delta
}

// Counter takes authoritative counts
type Counter interface {
	CountWhere(ctx context.Context, filter models.Filter) (models.CountSnapshot, error)
}

// Config contains configuration for Relay
type Config struct {
	Kind      Kind
	ScopeId   string
	Counter   Counter
	Hub       *realtime.Hub
	Baselines *Baselines
	OnChange  func(value int)
	RetryWait time.Duration
}

// Relay keeps one derived counter in step with the change stream. Every subscription
// starts from a fresh authoritative count.
type Relay struct {
	kind      Kind
	filter    models.Filter
	hub       *realtime.Hub
	baselines *Baselines
	onChange  func(int)
	retryWait time.Duration

	mu          sync.RWMutex
	value       int
	baselineSeq int64
	applied     map[string]struct{}
	sub         *realtime.Subscription

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) (*Relay, error) {
	filter, err := FilterFor(cfg.Kind, cfg.ScopeId)
	if err != nil {
		return nil, err
	}
	if cfg.ScopeId == "" {
		return nil, fmt.Errorf("relay %s needs a scope id", cfg.Kind)
	}
	baselines := cfg.Baselines
	if baselines == nil {
		baselines = NewBaselines(cfg.Counter)
	}
	retryWait := cfg.RetryWait
	if retryWait <= 0 {
		retryWait = time.Second
	}
	return &Relay{
		kind:      cfg.Kind,
		filter:    filter,
		hub:       cfg.Hub,
		baselines: baselines,
		onChange:  cfg.OnChange,
		retryWait: retryWait,
		applied:   make(map[string]struct{}),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}, nil
}

func (r *Relay) Kind() Kind {
	return r.kind
}

func (r *Relay) Filter() models.Filter {
	return r.filter
}

// Value returns the current counter value
func (r *Relay) Value() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// Start subscribes, takes the baseline and begins applying events
func (r *Relay) Start(ctx context.Context) error {
	sub := r.hub.Subscribe(r.filter)
	if err := r.rebaseline(ctx, sub); err != nil {
		sub.Stop()
		return err
	}
	go r.run(ctx)
	return nil
}

// Stop ends delivery and releases the subscription
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	<-r.doneChan
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.doneChan)
	defer func() {
		r.mu.RLock()
		sub := r.sub
		r.mu.RUnlock()
		sub.Stop()
	}()

	for {
		r.mu.RLock()
		events := r.sub.C
		r.mu.RUnlock()

		select {
		case ev, ok := <-events:
			if !ok {
				if !r.resubscribe(ctx) {
					return
				}
				continue
			}
			r.apply(ev)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// resubscribe replaces a closed subscription and re-fetches the count, retrying until
// it succeeds. It returns false when the relay is stopping or the hub has closed.
func (r *Relay) resubscribe(ctx context.Context) bool {
	if r.hub.Closed() {
		zap.L().Info("Hub closed, stopping relay", zap.String("kind", string(r.kind)))
		return false
	}
	zap.L().Info("Relay subscription closed, resubscribing",
		zap.String("kind", string(r.kind)),
		zap.String("account_id", r.filter.AccountId),
		zap.String("parent_id", r.filter.ParentId))

	for {
		if r.hub.Closed() {
			return false
		}
		sub := r.hub.Subscribe(r.filter)
		err := r.rebaseline(ctx, sub)
		if err == nil {
			return true
		}
		sub.Stop()
		zap.L().Warn("Relay baseline failed, will retry",
			zap.String("kind", string(r.kind)),
			zap.Duration("retry_wait", r.retryWait),
			zap.Error(err))

		select {
		case <-time.After(r.retryWait):
		case <-r.stopChan:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// rebaseline installs sub and replaces the counter with an authoritative count taken
// after sub started receiving.
func (r *Relay) rebaseline(ctx context.Context, sub *realtime.Subscription) error {
	snapshot, err := r.baselines.Fetch(ctx, r.filter, sub.StartSeq)
	if err != nil {
		return fmt.Errorf("failed to fetch %s baseline: %w", r.kind, err)
	}

	r.mu.Lock()
	r.sub = sub
	r.value = snapshot.Count
	r.baselineSeq = snapshot.AsOfSeq
	r.applied = make(map[string]struct{})
	value := r.value
	r.mu.Unlock()

	zap.L().Debug("Relay baseline fetched",
		zap.String("kind", string(r.kind)),
		zap.Int("count", snapshot.Count),
		zap.Int64("as_of_seq", snapshot.AsOfSeq))

	r.notify(value)
	return nil
}

func (r *Relay) apply(ev models.ChangeEvent) {
	r.mu.Lock()
	if ev.Seq <= r.baselineSeq {
		r.mu.Unlock()
		return
	}
	if _, seen := r.applied[ev.Id]; seen {
		r.mu.Unlock()
		return
	}
	r.applied[ev.Id] = struct{}{}

	delta := Delta(r.filter, ev)
	if delta == 0 {
		r.mu.Unlock()
		return
	}
	r.value += delta
	if r.value < 0 {
		r.value = 0
	}
	value := r.value
	r.mu.Unlock()

	r.notify(value)
}

func (r *Relay) notify(value int) {
	if r.onChange != nil {
		r.onChange(value)
	}
}
