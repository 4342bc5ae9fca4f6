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

package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type window struct {
	count int
	start time.Time
}

// FixedWindow counts attempts per key inside fixed windows. State is in memory and
// local to the process.
type FixedWindow struct {
	name        string
	maxAttempts int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*window
}

// Option configures a FixedWindow
type Option func(*FixedWindow)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) {
		l.now = now
	}
}

func NewFixedWindow(name string, maxAttempts int, size time.Duration, opts ...Option) *FixedWindow {
	l := &FixedWindow{
		name:        name,
		maxAttempts: maxAttempts,
		window:      size,
		now:         time.Now,
		entries:     make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *FixedWindow) Name() string {
	return l.name
}

// IsRateLimited records an attempt for key and reports whether it exceeds the limit.
// A denied attempt is not counted.
func (l *FixedWindow) IsRateLimited(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.start) >= l.window {
		l.entries[key] = &window{count: 1, start: now}
		return false
	}
	if entry.count >= l.maxAttempts {
		return true
	}
	entry.count++
	return false
}

// Reset clears key so the next attempt opens a fresh window
func (l *FixedWindow) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Cleanup drops expired windows and returns how many were removed
func (l *FixedWindow) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, entry := range l.entries {
		if now.Sub(entry.start) >= l.window {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run calls Cleanup on every tick until ctx is done
func (l *FixedWindow) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := l.Cleanup(); removed > 0 {
				zap.L().Debug("Cleaned up expired rate limit windows",
					zap.String("limiter", l.name),
					zap.Int("cleaned", removed),
					zap.Int("remaining", l.Len()))
			}
		case <-ctx.Done():
			return
		}
	}
}
