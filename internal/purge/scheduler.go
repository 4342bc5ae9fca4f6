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

package purge

import (
	"context"
	"fmt"
	"time"

	"qna-coin-ledger-go/internal/models"

	"go.uber.org/zap"
)

// Deleter removes rows matching a filter
type Deleter interface {
	DeleteWhere(ctx context.Context, filter models.Filter) (int, error)
}

// SchedulerConfig contains configuration for Scheduler
type SchedulerConfig struct {
	DbService      Deleter
	ScopeAccountId string
	Location       *time.Location
	Timeout        time.Duration
	// OnSwept runs after a sweep that deleted at least one message
	OnSwept func(deleted int)
}

// Scheduler deletes read messages that were marked for purge, once at every local
// midnight.
type Scheduler struct {
	dbService Deleter
	scope     string
	loc       *time.Location
	timeout   time.Duration
	onSwept   func(int)

	now      func() time.Time
	newTimer func(d time.Duration) (<-chan time.Time, func() bool)
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		dbService: cfg.DbService,
		scope:     cfg.ScopeAccountId,
		loc:       loc,
		timeout:   timeout,
		onSwept:   cfg.OnSwept,
		now:       time.Now,
		newTimer: func(d time.Duration) (<-chan time.Time, func() bool) {
			t := time.NewTimer(d)
			return t.C, t.Stop
		},
	}
}

// LoadLocation resolves a timezone name. "Local" and "" mean the process timezone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load purge timezone %q: %w", name, err)
	}
	return loc, nil
}

// NextMidnight returns the first midnight in loc strictly after now
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// Sweep deletes every purgeable message in scope and returns how many were removed
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	deleted, err := s.dbService.DeleteWhere(ctx, models.Filter{
		Relation:  models.RelationMessages,
		AccountId: s.scope,
		Purgeable: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge messages: %w", err)
	}
	if deleted > 0 && s.onSwept != nil {
		s.onSwept(deleted)
	}
	return deleted, nil
}

// Run sweeps at each local midnight until ctx is done. The next run time is recomputed
// after every sweep so DST changes and clock drift do not accumulate.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := NextMidnight(s.now(), s.loc)
		wait := next.Sub(s.now())

		zap.L().Info("Next message purge scheduled",
			zap.Time("at", next),
			zap.Duration("in", wait),
			zap.String("scope_account_id", s.scope))

		fire, stop := s.newTimer(wait)
		select {
		case <-fire:
		case <-ctx.Done():
			stop()
			return
		}

		deleted, err := s.Sweep(ctx)
		if err != nil {
			zap.L().Error("Message purge failed, will retry at next midnight", zap.Error(err))
			continue
		}
		zap.L().Info("Message purge completed", zap.Int("deleted", deleted))
	}
}
