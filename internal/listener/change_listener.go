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

package listener

import (
	"context"
	"sync"
	"time"

	"qna-coin-ledger-go/internal/realtime"
	"qna-coin-ledger-go/internal/store"

	"go.uber.org/zap"
)

// ChangeListenerConfig contains configuration for ChangeListener
type ChangeListenerConfig struct {
	DbService       store.LedgerStore
	Hub             *realtime.Hub
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
	BatchSize       int
}

// ChangeListener polls the store's change log and publishes new events to the hub
type ChangeListener struct {
	dbService store.LedgerStore
	hub       *realtime.Hub

	// State management for published events
	processedEventIds map[string]time.Time
	mutex             sync.RWMutex
	lastSeq           int64
	lookbackWindow    time.Duration
	pollingInterval   time.Duration
	cleanupInterval   time.Duration
	batchSize         int

	// Control channels
	wakeChan chan struct{}
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewChangeListener creates a new change listener
func NewChangeListener(cfg ChangeListenerConfig) *ChangeListener {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	return &ChangeListener{
		dbService:         cfg.DbService,
		hub:               cfg.Hub,
		processedEventIds: make(map[string]time.Time),
		lookbackWindow:    cfg.LookbackWindow,
		pollingInterval:   cfg.PollingInterval,
		cleanupInterval:   cfg.CleanupInterval,
		batchSize:         batchSize,
		wakeChan:          make(chan struct{}, 1),
		stopChan:          make(chan struct{}),
		doneChan:          make(chan struct{}),
	}
}

// Wake asks the listener to poll now instead of waiting for the next tick
func (d *ChangeListener) Wake() {
	select {
	case d.wakeChan <- struct{}{}:
	default:
	}
}

// Position returns the seq of the last event published
func (d *ChangeListener) Position() int64 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.lastSeq
}

// isEventProcessed checks if we've already published this event
func (d *ChangeListener) isEventProcessed(eventId string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	_, exists := d.processedEventIds[eventId]
	return exists
}

// markEventProcessed records the event and advances the read position
func (d *ChangeListener) markEventProcessed(eventId string, seq int64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.processedEventIds[eventId] = time.Now()
	if seq > d.lastSeq {
		d.lastSeq = seq
	}
}

// cleanupLoop periodically cleans old processed event IDs
func (d *ChangeListener) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.cleanupProcessedEvents()
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupProcessedEvents removes old entries from processed events map
func (d *ChangeListener) cleanupProcessedEvents() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	cutoff := time.Now().UTC().Add(-d.lookbackWindow)
	cleaned := 0

	for eventId, processedTime := range d.processedEventIds {
		if processedTime.Before(cutoff) {
			delete(d.processedEventIds, eventId)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up old processed events",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(d.processedEventIds)))
	}
}
