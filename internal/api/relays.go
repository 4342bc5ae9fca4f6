package api

import (
	"context"

	"qna-coin-ledger-go/internal/relay"
)

// OnUnreadCountChanged starts a relay that calls onChange with the account's unread
// message count, once with the baseline and again on every change. The caller stops it.
func (s *LedgerService) OnUnreadCountChanged(ctx context.Context, accountId string, onChange func(int)) (*relay.Relay, error) {
	return s.StartRelay(ctx, relay.KindUnreadMessages, accountId, onChange)
}

// OnNotificationCountChanged is OnUnreadCountChanged for unread notifications
func (s *LedgerService) OnNotificationCountChanged(ctx context.Context, accountId string, onChange func(int)) (*relay.Relay, error) {
	return s.StartRelay(ctx, relay.KindUnreadNotifications, accountId, onChange)
}

// OnAnswerCountChanged follows the number of answers on a question
func (s *LedgerService) OnAnswerCountChanged(ctx context.Context, questionId string, onChange func(int)) (*relay.Relay, error) {
	return s.StartRelay(ctx, relay.KindAnswerCount, questionId, onChange)
}

// OnLikeCountChanged follows the number of likes on a question
func (s *LedgerService) OnLikeCountChanged(ctx context.Context, questionId string, onChange func(int)) (*relay.Relay, error) {
	return s.StartRelay(ctx, relay.KindLikeCount, questionId, onChange)
}

// StartRelay starts a relay of any kind on the shared hub
func (s *LedgerService) StartRelay(ctx context.Context, kind relay.Kind, scopeId string, onChange func(int)) (*relay.Relay, error) {
	r, err := relay.New(relay.Config{
		Kind:      kind,
		ScopeId:   scopeId,
		Counter:   s.db,
		Hub:       s.hub,
		Baselines: s.baselines,
		OnChange:  onChange,
	})
	if err != nil {
		return nil, invalid("%v", err)
	}
	if err := r.Start(ctx); err != nil {
		return nil, err
	}
	return r, nil
}
