package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	mu    sync.Mutex
	count int
	seq   int64
	calls int
}

func (f *fakeCounter) set(count int, seq int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = count
	f.seq = seq
}

func (f *fakeCounter) CountWhere(ctx context.Context, filter models.Filter) (models.CountSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return models.CountSnapshot{Count: f.count, AsOfSeq: f.seq}, nil
}

func (f *fakeCounter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func message(seq int64, id string, before, after models.RowState) models.ChangeEvent {
	typ := models.EventUpdate
	if !before.Exists {
		typ = models.EventInsert
	} else if !after.Exists {
		typ = models.EventDelete
	}
	return models.ChangeEvent{
		Seq: seq, Id: id, Relation: models.RelationMessages, Type: typ,
		AccountId: "bob", Before: before, After: after,
	}
}

var (
	absent = models.RowState{}
	unread = models.RowState{Exists: true, Unread: true}
	read   = models.RowState{Exists: true}
)

func TestDelta(t *testing.T) {
	inbox, err := FilterFor(KindUnreadMessages, "bob")
	require.NoError(t, err)
	answers, err := FilterFor(KindAnswerCount, "q1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter models.Filter
		ev     models.ChangeEvent
		want   int
	}{
		{"insert unread to me", inbox, message(1, "a", absent, unread), 1},
		{"mark read", inbox, message(2, "b", unread, read), -1},
		{"delete my unread", inbox, message(3, "c", unread, absent), -1},
		{"delete read", inbox, message(4, "d", read, absent), 0},
		{"purge mark on unread", inbox, message(5, "e", unread, unread), 0},
		{"someone else's inbox", inbox, models.ChangeEvent{Relation: models.RelationMessages, AccountId: "carol", After: unread}, 0},
		{"answer insert", answers, models.ChangeEvent{Relation: models.RelationAnswers, ParentId: "q1", After: read}, 1},
		{"answer delete", answers, models.ChangeEvent{Relation: models.RelationAnswers, ParentId: "q1", Before: read}, -1},
		{"answer on other question", answers, models.ChangeEvent{Relation: models.RelationAnswers, ParentId: "q2", After: read}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Delta(tt.filter, tt.ev))
		})
	}
}

func startRelay(t *testing.T, hub *realtime.Hub, counter Counter, baselines *Baselines) *Relay {
	t.Helper()
	r, err := New(Config{
		Kind:      KindUnreadMessages,
		ScopeId:   "bob",
		Counter:   counter,
		Hub:       hub,
		Baselines: baselines,
		RetryWait: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	return r
}

func TestRelay_AppliesDeltasAfterBaseline(t *testing.T) {
	hub := realtime.NewHub(16)
	counter := &fakeCounter{}
	counter.set(2, 10)

	r := startRelay(t, hub, counter, nil)
	defer r.Stop()
	assert.Equal(t, 2, r.Value())

	// Already reflected in the baseline
	hub.Publish(message(9, "old", absent, unread))
	hub.Publish(message(11, "m1", absent, unread))
	hub.Publish(message(11, "m1", absent, unread))
	hub.Publish(message(12, "m2", unread, read))
	hub.Publish(message(13, "m3", absent, unread))

	assert.Eventually(t, func() bool { return r.Value() == 3 }, time.Second, 5*time.Millisecond)
}

func TestRelay_ResubscribeRefetchesBaseline(t *testing.T) {
	hub := realtime.NewHub(16)
	counter := &fakeCounter{}
	counter.set(1, 5)

	var mu sync.Mutex
	var seen []int
	r, err := New(Config{
		Kind:    KindUnreadMessages,
		ScopeId: "bob",
		Counter: counter,
		Hub:     hub,
		OnChange: func(v int) {
			mu.Lock()
			seen = append(seen, v)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	counter.set(7, 20)
	r.mu.RLock()
	sub := r.sub
	r.mu.RUnlock()
	sub.Stop()

	assert.Eventually(t, func() bool { return r.Value() == 7 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, counter.callCount())

	// An event replayed from before the new baseline is not counted again
	hub.Publish(message(15, "replayed", absent, unread))
	hub.Publish(message(21, "fresh", absent, unread))
	assert.Eventually(t, func() bool { return r.Value() == 8 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 7, 8}, seen)
}

func TestRelay_SurfacesConverge(t *testing.T) {
	hub := realtime.NewHub(16)
	counter := &fakeCounter{}
	counter.set(4, 3)
	baselines := NewBaselines(counter)

	header := startRelay(t, hub, counter, baselines)
	defer header.Stop()
	inbox := startRelay(t, hub, counter, baselines)
	defer inbox.Stop()

	hub.Publish(message(4, "x", unread, read))
	hub.Publish(message(5, "y", absent, unread))
	hub.Publish(message(6, "z", unread, absent))

	assert.Eventually(t, func() bool {
		return header.Value() == 3 && inbox.Value() == 3
	}, time.Second, 5*time.Millisecond)
}

func TestRelay_StopReleasesSubscription(t *testing.T) {
	hub := realtime.NewHub(16)
	counter := &fakeCounter{}

	r := startRelay(t, hub, counter, nil)
	assert.Equal(t, 1, hub.SubscriberCount())

	r.Stop()
	r.Stop()
	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestRelay_StopsWhenHubCloses(t *testing.T) {
	hub := realtime.NewHub(16)
	counter := &fakeCounter{}

	r := startRelay(t, hub, counter, nil)
	hub.Close()

	assert.Eventually(t, func() bool {
		select {
		case <-r.doneChan:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, counter.callCount())
	r.Stop()
}

// gatedCounter blocks every query until release is closed, then honours its ctx
type gatedCounter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedCounter) CountWhere(ctx context.Context, filter models.Filter) (models.CountSnapshot, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return models.CountSnapshot{}, err
	}
	return models.CountSnapshot{Count: 6, AsOfSeq: 9}, nil
}

func TestBaselines_SharedFetchSurvivesCancelledCaller(t *testing.T) {
	counter := &gatedCounter{entered: make(chan struct{}), release: make(chan struct{})}
	b := NewBaselines(counter)
	filter := models.Filter{Relation: models.RelationMessages, AccountId: "bob", Unread: true}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := b.Fetch(firstCtx, filter, 0)
		firstErr <- err
	}()
	<-counter.entered

	type result struct {
		snapshot models.CountSnapshot
		err      error
	}
	second := make(chan result, 1)
	go func() {
		snapshot, err := b.Fetch(context.Background(), filter, 0)
		second <- result{snapshot, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(counter.release)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 6, got.snapshot.Count)
}

func TestBaselines_DiscardsStaleSnapshot(t *testing.T) {
	counter := &fakeCounter{}
	counter.set(3, 2)
	b := NewBaselines(counter)

	snapshot, err := b.Fetch(context.Background(), models.Filter{Relation: models.RelationMessages}, 5)
	require.NoError(t, err)

	// Every attempt returns seq 2, so Fetch falls back to a direct query
	assert.Equal(t, 3, snapshot.Count)
	assert.Equal(t, 4, counter.callCount())
}

func TestNew_RejectsUnknownKind(t *testing.T) {
	_, err := New(Config{Kind: "bogus", ScopeId: "x"})
	assert.Error(t, err)

	_, err = New(Config{Kind: KindLikeCount})
	assert.Error(t, err)
}
