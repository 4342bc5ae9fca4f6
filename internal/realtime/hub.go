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

package realtime

import (
	"sync"

	"qna-coin-ledger-go/internal/models"

	"go.uber.org/zap"
)

const DefaultBuffer = 256

// Subscription delivers change events matching its filter on C. C is closed when the
// subscription is stopped, when the hub closes, or when the subscriber falls behind.
type Subscription struct {
	C <-chan models.ChangeEvent

	// StartSeq is the highest seq published before the subscription existed. Every
	// matching event with a greater seq is delivered on C until it closes.
	StartSeq int64

	id     uint64
	filter models.Filter
	ch     chan models.ChangeEvent
	hub    *Hub
	once   sync.Once
}

// Stop unsubscribes and releases the channel. It is safe to call more than once.
func (s *Subscription) Stop() {
	s.hub.remove(s.id)
}

func (s *Subscription) Filter() models.Filter {
	return s.filter
}

// Hub fans change events out to in-process subscribers
type Hub struct {
	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextId  uint64
	lastSeq int64
	buffer  int
	closed  bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
	}
}

func (h *Hub) Subscribe(filter models.Filter) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan models.ChangeEvent, h.buffer)
	h.nextId++
	sub := &Subscription{
		C:        ch,
		StartSeq: h.lastSeq,
		id:       h.nextId,
		filter:   filter,
		ch:       ch,
		hub:      h,
	}
	if h.closed {
		sub.once.Do(func() { close(ch) })
		return sub
	}
	h.subs[sub.id] = sub
	return sub
}

// Publish delivers ev to every matching subscriber without blocking. A subscriber
// whose buffer is full is disconnected and must resubscribe.
func (h *Hub) Publish(ev models.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.Seq > h.lastSeq {
		h.lastSeq = ev.Seq
	}
	for id, sub := range h.subs {
		if !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			zap.L().Warn("Disconnecting lagging subscriber",
				zap.Uint64("subscription_id", id),
				zap.String("relation", string(sub.filter.Relation)),
				zap.Int64("seq", ev.Seq))
			delete(h.subs, id)
			sub.once.Do(func() { close(sub.ch) })
		}
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Close disconnects every subscriber. Later subscriptions start closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Closed reports whether Close has been called
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// LastSeq returns the highest seq published so far
func (h *Hub) LastSeq() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSeq
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
