package api

import (
	"context"
	"strings"

	"qna-coin-ledger-go/internal/coordinator"
	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/rules"
	"qna-coin-ledger-go/internal/store"

	"github.com/google/uuid"
)

// DeleteAnswer removes an answer. Authors pay the answer deletion cost; admins delete
// any answer for free.
func (s *LedgerService) DeleteAnswer(ctx context.Context, actorId, answerId string) (models.ActionResult, error) {
	if actorId == "" || answerId == "" {
		return models.ActionResult{}, invalid("actor_id and answer_id are required")
	}

	coord := s.coordinatorFor(actorId)
	view := coord.View()
	mutationId := uuid.New().String()

	res, err := coord.Execute(ctx, coordinator.Request{
		Action:   rules.ActionDeleteAnswer,
		ActorId:  actorId,
		TargetId: answerId,
		Key:      "answer:" + answerId,
		Scope: coordinator.Scope{
			Balances: []string{actorId},
			Answers:  []string{answerId},
		},
		Decide: func(ctx context.Context) (rules.Decision, error) {
			answer, err := s.db.GetAnswer(ctx, answerId)
			if err != nil {
				return rules.Decision{}, err
			}
			actor, err := s.loadActor(ctx, view, actorId)
			if err != nil {
				return rules.Decision{}, err
			}
			view.SetAnswer(answerId, true)

			return s.engine.Decide(rules.ActionDeleteAnswer, actor, rules.Target{
				EntityId: answerId,
				OwnerId:  answer.AuthorId,
			}), nil
		},
		Apply: func(v *coordinator.View, d rules.Decision) {
			v.AddBalance(actorId, d.ActorDelta)
			v.SetAnswer(answerId, false)
		},
		Remote: func(ctx context.Context, d rules.Decision) error {
			return s.db.DeleteAnswer(ctx, store.DeleteContentParams{
				Id:        answerId,
				ActorId:   actorId,
				Cost:      d.Cost,
				Reference: string(rules.ActionDeleteAnswer) + ":" + mutationId,
			})
		},
	})
	if err != nil {
		return models.ActionResult{}, err
	}
	s.wake()

	balance, _ := view.Balance(actorId)
	return models.ActionResult{
		Action:     string(rules.ActionDeleteAnswer),
		TargetId:   answerId,
		Noop:       res.Noop,
		Balance:    balance,
		MutationId: mutationId,
	}, nil
}

// DeleteQuestion removes a question with its answers, likes and notifications. Authors
// pay the question deletion cost; admins delete any question for free, including
// anonymous ones.
func (s *LedgerService) DeleteQuestion(ctx context.Context, actorId, questionId string) (models.ActionResult, error) {
	if actorId == "" || questionId == "" {
		return models.ActionResult{}, invalid("actor_id and question_id are required")
	}

	coord := s.coordinatorFor(actorId)
	view := coord.View()
	mutationId := uuid.New().String()

	res, err := coord.Execute(ctx, coordinator.Request{
		Action:   rules.ActionDeleteQuestion,
		ActorId:  actorId,
		TargetId: questionId,
		Key:      "question:" + questionId,
		Scope: coordinator.Scope{
			Balances:  []string{actorId},
			Questions: []string{questionId},
		},
		Decide: func(ctx context.Context) (rules.Decision, error) {
			question, err := s.db.GetQuestion(ctx, questionId)
			if err != nil {
				return rules.Decision{}, err
			}
			actor, err := s.loadActor(ctx, view, actorId)
			if err != nil {
				return rules.Decision{}, err
			}
			view.SetQuestion(questionId, true)

			return s.engine.Decide(rules.ActionDeleteQuestion, actor, rules.Target{
				EntityId: questionId,
				OwnerId:  question.AuthorId,
			}), nil
		},
		Apply: func(v *coordinator.View, d rules.Decision) {
			v.AddBalance(actorId, d.ActorDelta)
			v.SetQuestion(questionId, false)
		},
		Remote: func(ctx context.Context, d rules.Decision) error {
			return s.db.DeleteQuestion(ctx, store.DeleteContentParams{
				Id:        questionId,
				ActorId:   actorId,
				Cost:      d.Cost,
				Reference: string(rules.ActionDeleteQuestion) + ":" + mutationId,
			})
		},
	})
	if err != nil {
		return models.ActionResult{}, err
	}
	s.wake()

	balance, _ := view.Balance(actorId)
	return models.ActionResult{
		Action:     string(rules.ActionDeleteQuestion),
		TargetId:   questionId,
		Noop:       res.Noop,
		Balance:    balance,
		MutationId: mutationId,
	}, nil
}

// UpdateProfileRequest changes the actor's public profile. Empty fields keep their
// current value.
type UpdateProfileRequest struct {
	Name      string `json:"name"`
	AvatarUrl string `json:"avatar_url"`
}

// UpdateProfile renames the actor or changes their avatar for the profile update cost.
// The new name must not belong to another account.
func (s *LedgerService) UpdateProfile(ctx context.Context, actorId string, req UpdateProfileRequest) (*models.AccountProfile, error) {
	if actorId == "" {
		return nil, invalid("actor_id is required")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.AvatarUrl = strings.TrimSpace(req.AvatarUrl)
	if len(req.Name) > maxNameLength {
		return nil, invalid("name must be at most %d characters", maxNameLength)
	}

	coord := s.coordinatorFor(actorId)
	view := coord.View()
	mutationId := uuid.New().String()

	var updated *models.Account
	_, err := coord.Execute(ctx, coordinator.Request{
		Action:   rules.ActionUpdateProfile,
		ActorId:  actorId,
		TargetId: actorId,
		Key:      "profile:" + actorId,
		Scope:    coordinator.Scope{Balances: []string{actorId}},
		Decide: func(ctx context.Context) (rules.Decision, error) {
			account, err := s.db.GetAccount(ctx, actorId)
			if err != nil {
				return rules.Decision{}, err
			}
			view.SetBalance(account.Id, account.Balance)
			if req.Name == "" {
				req.Name = account.Name
			}
			if req.AvatarUrl == "" {
				req.AvatarUrl = account.AvatarUrl
			}
			taken, err := s.db.NameTaken(ctx, req.Name, actorId)
			if err != nil {
				return rules.Decision{}, err
			}

			return s.engine.Decide(rules.ActionUpdateProfile,
				rules.Actor{Id: account.Id, IsAdmin: account.IsAdmin, Balance: account.Balance},
				rules.Target{EntityId: actorId, NameTaken: taken}), nil
		},
		Apply: func(v *coordinator.View, d rules.Decision) {
			v.AddBalance(actorId, d.ActorDelta)
		},
		Remote: func(ctx context.Context, d rules.Decision) error {
			account, err := s.db.UpdateProfile(ctx, store.UpdateProfileParams{
				AccountId: actorId,
				Name:      req.Name,
				AvatarUrl: req.AvatarUrl,
				Cost:      d.Cost,
				Reference: string(rules.ActionUpdateProfile) + ":" + mutationId,
			})
			if err != nil {
				return err
			}
			updated = account
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.wake()

	profile := updated.ToProfile()
	return &profile, nil
}
