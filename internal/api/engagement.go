package api

import (
	"context"

	"qna-coin-ledger-go/internal/coordinator"
	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/rules"
	"qna-coin-ledger-go/internal/store"

	"github.com/google/uuid"
)

// LikeQuestion likes the question and credits its author. Liking twice is a no-op.
func (s *LedgerService) LikeQuestion(ctx context.Context, actorId, questionId string) (models.ActionResult, error) {
	return s.setLike(ctx, rules.ActionLike, actorId, questionId)
}

// UnlikeQuestion removes the like and takes the reward back from the author.
// Unliking a question that is not liked is a no-op.
func (s *LedgerService) UnlikeQuestion(ctx context.Context, actorId, questionId string) (models.ActionResult, error) {
	return s.setLike(ctx, rules.ActionUnlike, actorId, questionId)
}

func (s *LedgerService) setLike(ctx context.Context, action rules.Action, actorId, questionId string) (models.ActionResult, error) {
	if actorId == "" || questionId == "" {
		return models.ActionResult{}, invalid("actor_id and question_id are required")
	}
	question, err := s.db.GetQuestion(ctx, questionId)
	if err != nil {
		return models.ActionResult{}, err
	}

	coord := s.coordinatorFor(actorId)
	view := coord.View()
	liking := action == rules.ActionLike
	mutationId := uuid.New().String()

	noop := store.ErrNotFound
	if liking {
		noop = store.ErrAlreadyExists
	}

	res, err := coord.Execute(ctx, coordinator.Request{
		Action:   action,
		ActorId:  actorId,
		TargetId: questionId,
		Key:      "like:" + questionId,
		Scope: coordinator.Scope{
			Likes:    []string{questionId},
			Balances: []string{question.AuthorId},
		},
		Decide: func(ctx context.Context) (rules.Decision, error) {
			current, err := s.db.GetQuestion(ctx, questionId)
			if err != nil {
				return rules.Decision{}, err
			}
			liked, err := s.db.HasLike(ctx, actorId, questionId)
			if err != nil {
				return rules.Decision{}, err
			}
			for _, id := range []string{actorId, current.AuthorId} {
				if err := s.syncBalance(ctx, view, id); err != nil {
					return rules.Decision{}, err
				}
			}
			view.SetLike(questionId, liked, current.LikeCount)

			return s.engine.Decide(action, rules.Actor{Id: actorId}, rules.Target{
				EntityId: questionId,
				OwnerId:  current.AuthorId,
				Liked:    liked,
			}), nil
		},
		Apply: func(v *coordinator.View, d rules.Decision) {
			v.ToggleLike(questionId, liking)
			if d.TargetAccountId != "" {
				v.AddBalance(d.TargetAccountId, d.TargetDelta)
			}
		},
		Remote: func(ctx context.Context, d rules.Decision) error {
			reward := d.TargetDelta
			if reward < 0 {
				reward = -reward
			}
			params := store.LikeParams{
				AccountId:  actorId,
				QuestionId: questionId,
				AuthorId:   d.TargetAccountId,
				Reward:     reward,
				Reference:  string(action) + ":" + mutationId,
			}
			if liking {
				return s.db.CreateLike(ctx, params)
			}
			return s.db.DeleteLike(ctx, params)
		},
		NoopErrors: []error{noop},
	})
	if err != nil {
		return models.ActionResult{}, err
	}
	if res.Noop {
		// Another surface got there first; the store already has the requested state
		view.ToggleLike(questionId, liking)
	} else {
		s.wake()
	}

	balance, _ := view.Balance(actorId)
	return models.ActionResult{
		Action:     string(action),
		TargetId:   questionId,
		Noop:       res.Noop,
		Balance:    balance,
		LikeCount:  view.LikeCount(questionId),
		Liked:      view.Liked(questionId),
		MutationId: mutationId,
	}, nil
}

// FollowAccount makes actorId follow targetId. Following twice is a no-op.
func (s *LedgerService) FollowAccount(ctx context.Context, actorId, targetId string) (models.ActionResult, error) {
	return s.setFollow(ctx, rules.ActionFollow, actorId, targetId)
}

// UnfollowAccount stops actorId following targetId. Unfollowing when not following is a no-op.
func (s *LedgerService) UnfollowAccount(ctx context.Context, actorId, targetId string) (models.ActionResult, error) {
	return s.setFollow(ctx, rules.ActionUnfollow, actorId, targetId)
}

func (s *LedgerService) setFollow(ctx context.Context, action rules.Action, actorId, targetId string) (models.ActionResult, error) {
	if actorId == "" || targetId == "" {
		return models.ActionResult{}, invalid("actor_id and target_id are required")
	}

	coord := s.coordinatorFor(actorId)
	view := coord.View()
	following := action == rules.ActionFollow
	mutationId := uuid.New().String()

	noop := store.ErrNotFound
	if following {
		noop = store.ErrAlreadyExists
	}

	res, err := coord.Execute(ctx, coordinator.Request{
		Action:   action,
		ActorId:  actorId,
		TargetId: targetId,
		Key:      "follow:" + targetId,
		Scope:    coordinator.Scope{Following: []string{targetId}},
		Decide: func(ctx context.Context) (rules.Decision, error) {
			if actorId != targetId {
				if _, err := s.db.GetAccount(ctx, targetId); err != nil {
					return rules.Decision{}, err
				}
			}
			current, err := s.db.IsFollowing(ctx, actorId, targetId)
			if err != nil {
				return rules.Decision{}, err
			}
			if err := s.syncBalance(ctx, view, actorId); err != nil {
				return rules.Decision{}, err
			}
			view.SetFollowing(targetId, current)

			return s.engine.Decide(action, rules.Actor{Id: actorId}, rules.Target{
				EntityId:  targetId,
				OwnerId:   targetId,
				Following: current,
			}), nil
		},
		Apply: func(v *coordinator.View, d rules.Decision) {
			v.SetFollowing(targetId, following)
		},
		Remote: func(ctx context.Context, d rules.Decision) error {
			if following {
				return s.db.CreateFollow(ctx, actorId, targetId)
			}
			return s.db.DeleteFollow(ctx, actorId, targetId)
		},
		NoopErrors: []error{noop},
	})
	if err != nil {
		return models.ActionResult{}, err
	}
	if res.Noop {
		view.SetFollowing(targetId, following)
	} else {
		s.wake()
	}

	balance, _ := view.Balance(actorId)
	return models.ActionResult{
		Action:     string(action),
		TargetId:   targetId,
		Noop:       res.Noop,
		Balance:    balance,
		Following:  view.Following(targetId),
		MutationId: mutationId,
	}, nil
}
