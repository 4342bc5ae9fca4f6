package relay

import (
	"context"
	"fmt"
	"time"

	"qna-coin-ledger-go/internal/models"

	"golang.org/x/sync/singleflight"
)

// Baselines coalesces concurrent count fetches for the same filter, so every surface
// watching one relation shares a single query.
type Baselines struct {
	counter Counter
	timeout time.Duration
	group   singleflight.Group
}

const defaultFetchTimeout = 10 * time.Second

func NewBaselines(counter Counter) *Baselines {
	return &Baselines{counter: counter, timeout: defaultFetchTimeout}
}

func filterKey(f models.Filter) string {
	return fmt.Sprintf("%s|%s|%s|%t|%t", f.Relation, f.AccountId, f.ParentId, f.Unread, f.Purgeable)
}

// Fetch returns a count taken at or after minSeq. A shared result that started before
// minSeq is discarded and fetched again.
func (b *Baselines) Fetch(ctx context.Context, filter models.Filter, minSeq int64) (models.CountSnapshot, error) {
	key := filterKey(filter)
	for attempt := 0; attempt < 3; attempt++ {
		// The shared query outlives any one caller
		ch := b.group.DoChan(key, func() (any, error) {
			fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
			defer cancel()
			return b.counter.CountWhere(fetchCtx, filter)
		})
		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return models.CountSnapshot{}, ctx.Err()
		}
		if res.Err != nil {
			return models.CountSnapshot{}, res.Err
		}
		snapshot := res.Val.(models.CountSnapshot)
		if snapshot.AsOfSeq >= minSeq {
			return snapshot, nil
		}
		b.group.Forget(key)
	}
	// A fresh query always sees every published event
	return b.counter.CountWhere(ctx, filter)
}
