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
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Start begins the change monitoring process
func (d *ChangeListener) Start(ctx context.Context) error {
	zap.L().Info("Starting change listener")

	if err := d.performStartupRecovery(ctx); err != nil {
		zap.L().Error("Startup recovery failed", zap.Error(err))
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	go d.pollLoop(ctx)
	go d.cleanupLoop(ctx)

	zap.L().Info("Change listener started successfully",
		zap.Duration("polling_interval", d.pollingInterval),
		zap.Duration("lookback_window", d.lookbackWindow),
		zap.Int64("start_seq", d.Position()))

	return nil
}

// Stop gracefully stops the change listener
func (d *ChangeListener) Stop() {
	zap.L().Info("Stopping change listener")
	d.stopOnce.Do(func() { close(d.stopChan) })
	<-d.doneChan
	zap.L().Info("Change listener stopped")
}

// pollLoop runs the main polling loop
func (d *ChangeListener) pollLoop(ctx context.Context) {
	defer close(d.doneChan)

	ticker := time.NewTicker(d.pollingInterval)
	defer ticker.Stop()

	d.pollChanges(ctx)

	for {
		select {
		case <-ticker.C:
			d.pollChanges(ctx)
		case <-d.wakeChan:
			d.pollChanges(ctx)
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// pollChanges reads every event after the current position, in batches, and publishes it
func (d *ChangeListener) pollChanges(ctx context.Context) {
	for {
		events, err := d.dbService.ListChangesSince(ctx, d.Position(), d.batchSize)
		if err != nil {
			zap.L().Error("Failed to poll change log",
				zap.Int64("after_seq", d.Position()),
				zap.Error(err))
			return
		}

		published := 0
		for _, ev := range events {
			if d.isEventProcessed(ev.Id) {
				d.markEventProcessed(ev.Id, ev.Seq)
				continue
			}
			d.hub.Publish(ev)
			d.markEventProcessed(ev.Id, ev.Seq)
			published++
		}

		if published > 0 {
			zap.L().Debug("Published change events",
				zap.Int("count", published),
				zap.Int64("position", d.Position()))
		}

		if len(events) < d.batchSize {
			return
		}
	}
}

// performStartupRecovery positions the listener at the head of the change log. Events
// written while nothing was listening are already reflected in the counts relays fetch
// when they subscribe.
func (d *ChangeListener) performStartupRecovery(ctx context.Context) error {
	zap.L().Info("Starting startup recovery process")

	latest, err := d.dbService.LatestChangeSeq(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest change seq: %w", err)
	}

	d.mutex.Lock()
	if latest > d.lastSeq {
		d.lastSeq = latest
	}
	d.mutex.Unlock()

	zap.L().Info("Startup recovery completed successfully",
		zap.Int64("start_seq", latest),
		zap.Duration("lookback_window", d.lookbackWindow))
	return nil
}
