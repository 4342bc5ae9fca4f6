package listener

import (
	"context"
	"sync"
	"testing"
	"time"

	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/realtime"
	"qna-coin-ledger-go/internal/store"
)

// fakeChangeLog implements the change-log reads of store.LedgerStore
type fakeChangeLog struct {
	store.LedgerStore

	mu     sync.Mutex
	events []models.ChangeEvent
}

func (f *fakeChangeLog) append(id string, accountId string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, models.ChangeEvent{
		Seq:       int64(len(f.events) + 1),
		Id:        id,
		Relation:  models.RelationMessages,
		Type:      models.EventInsert,
		AccountId: accountId,
		After:     models.RowState{Exists: true, Unread: true},
	})
}

func (f *fakeChangeLog) ListChangesSince(ctx context.Context, afterSeq int64, limit int) ([]models.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChangeEvent
	for _, ev := range f.events {
		if ev.Seq > afterSeq && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeChangeLog) LatestChangeSeq(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.events)), nil
}

func receive(t *testing.T, sub *realtime.Subscription) models.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatalf("Subscription closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for event")
	}
	return models.ChangeEvent{}
}

func TestChangeListener_PublishesNewEventsInOrder(t *testing.T) {
	log := &fakeChangeLog{}
	log.append("old", "bob")

	hub := realtime.NewHub(16)
	sub := hub.Subscribe(models.Filter{Relation: models.RelationMessages, AccountId: "bob"})
	defer sub.Stop()

	l := NewChangeListener(ChangeListenerConfig{
		DbService:       log,
		Hub:             hub,
		LookbackWindow:  time.Minute,
		PollingInterval: time.Hour,
		CleanupInterval: time.Hour,
		BatchSize:       2,
	})

	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop()

	if l.Position() != 1 {
		t.Fatalf("Expected start position 1, got %d", l.Position())
	}

	log.append("e2", "bob")
	log.append("e3", "alice")
	log.append("e4", "bob")
	log.append("e5", "bob")
	l.Wake()

	for _, want := range []string{"e2", "e4", "e5"} {
		ev := receive(t, sub)
		if ev.Id != want {
			t.Fatalf("Expected event %s, got %s", want, ev.Id)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for l.Position() != 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if l.Position() != 5 {
		t.Errorf("Expected position 5, got %d", l.Position())
	}
}

func TestChangeListener_SkipsRepeatedEventIds(t *testing.T) {
	log := &fakeChangeLog{}
	hub := realtime.NewHub(16)
	sub := hub.Subscribe(models.Filter{})
	defer sub.Stop()

	l := NewChangeListener(ChangeListenerConfig{DbService: log, Hub: hub, LookbackWindow: time.Minute})
	ctx := context.Background()

	log.append("dup", "bob")
	log.append("dup", "bob")
	log.append("next", "bob")
	l.pollChanges(ctx)

	if got := receive(t, sub); got.Id != "dup" {
		t.Fatalf("Expected dup first, got %s", got.Id)
	}
	if got := receive(t, sub); got.Id != "next" {
		t.Fatalf("Expected next second, got %s", got.Id)
	}
	if len(sub.C) != 0 {
		t.Errorf("Expected no further events, got %d", len(sub.C))
	}
}

func TestChangeListener_CleanupDropsOldIds(t *testing.T) {
	l := NewChangeListener(ChangeListenerConfig{LookbackWindow: time.Minute})
	l.processedEventIds["old"] = time.Now().Add(-2 * time.Minute)
	l.processedEventIds["fresh"] = time.Now()

	l.cleanupProcessedEvents()

	if l.isEventProcessed("old") {
		t.Errorf("Expected old id to be cleaned up")
	}
	if !l.isEventProcessed("fresh") {
		t.Errorf("Expected fresh id to be kept")
	}
}
