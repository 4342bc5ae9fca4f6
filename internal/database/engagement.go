package database

import (
	"context"
	"fmt"
	"time"

	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/store"

	"go.uber.org/zap"
)

// CreateLike records the like and credits the question author in one transaction.
// A second like by the same account returns store.ErrAlreadyExists and moves no coins.
func (s *Service) CreateLike(ctx context.Context, params store.LikeParams) error {
	zap.L().Info("Creating like",
		zap.String("account_id", params.AccountId),
		zap.String("question_id", params.QuestionId),
		zap.String("author_id", params.AuthorId),
		zap.Int64("reward", params.Reward))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, queryInsertLike, params.AccountId, params.QuestionId, time.Now().UTC()); err != nil {
		if isConstraintViolation(err) {
			return constraintError(err, store.ErrAlreadyExists)
		}
		return classify(fmt.Errorf("unable to insert like: %w", err))
	}

	if err := appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationLikes,
		Type:      models.EventInsert,
		EntityId:  params.AccountId + ":" + params.QuestionId,
		AccountId: params.AccountId,
		ParentId:  params.QuestionId,
		After:     models.RowState{Exists: true},
	}); err != nil {
		return err
	}

	if params.AuthorId != "" {
		if _, err := s.subledger.applyDelta(ctx, tx, store.AdjustBalanceParams{
			AccountId: params.AuthorId,
			Delta:     params.Reward,
			Kind:      models.KindLikeReward,
			Reference: params.Reference,
			Reason:    "like on question " + params.QuestionId,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// DeleteLike removes the like and takes the reward back from the author, never below zero.
// Removing a like that does not exist returns store.ErrNotFound.
func (s *Service) DeleteLike(ctx context.Context, params store.LikeParams) error {
	zap.L().Info("Deleting like",
		zap.String("account_id", params.AccountId),
		zap.String("question_id", params.QuestionId),
		zap.String("author_id", params.AuthorId))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx, queryDeleteLike, params.AccountId, params.QuestionId)
	if err != nil {
		return classify(fmt.Errorf("unable to delete like: %w", err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: like %s on %s", store.ErrNotFound, params.AccountId, params.QuestionId)
	}

	if err := appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationLikes,
		Type:      models.EventDelete,
		EntityId:  params.AccountId + ":" + params.QuestionId,
		AccountId: params.AccountId,
		ParentId:  params.QuestionId,
		Before:    models.RowState{Exists: true},
	}); err != nil {
		return err
	}

	if params.AuthorId != "" {
		if _, err := s.subledger.applyDelta(ctx, tx, store.AdjustBalanceParams{
			AccountId:  params.AuthorId,
			Delta:      -params.Reward,
			Kind:       models.KindLikeRevoke,
			Reference:  params.Reference,
			Reason:     "unlike on question " + params.QuestionId,
			AllowClamp: true,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (s *Service) HasLike(ctx context.Context, accountId, questionId string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryHasLike, accountId, questionId).Scan(&count); err != nil {
		return false, classify(fmt.Errorf("unable to check like: %w", err))
	}
	return count > 0, nil
}

// CreateFollow records the relationship and notifies the followee
func (s *Service) CreateFollow(ctx context.Context, followerId, followeeId string) error {
	zap.L().Info("Creating follow", zap.String("follower_id", followerId), zap.String("followee_id", followeeId))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, queryInsertFollow, followerId, followeeId, time.Now().UTC()); err != nil {
		if isConstraintViolation(err) {
			return constraintError(err, store.ErrAlreadyExists)
		}
		return classify(fmt.Errorf("unable to insert follow: %w", err))
	}

	if err := appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationFollows,
		Type:      models.EventInsert,
		EntityId:  followerId + ":" + followeeId,
		AccountId: followeeId,
		ParentId:  followerId,
		After:     models.RowState{Exists: true},
	}); err != nil {
		return err
	}

	if err := insertNotification(ctx, tx, models.Notification{
		RecipientId: followeeId,
		ActorId:     followerId,
		Type:        models.NotificationFollow,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// DeleteFollow removes the relationship. Removing one that does not exist returns
// store.ErrNotFound.
func (s *Service) DeleteFollow(ctx context.Context, followerId, followeeId string) error {
	zap.L().Info("Deleting follow", zap.String("follower_id", followerId), zap.String("followee_id", followeeId))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx, queryDeleteFollow, followerId, followeeId)
	if err != nil {
		return classify(fmt.Errorf("unable to delete follow: %w", err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: follow %s -> %s", store.ErrNotFound, followerId, followeeId)
	}

	if err := appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationFollows,
		Type:      models.EventDelete,
		EntityId:  followerId + ":" + followeeId,
		AccountId: followeeId,
		ParentId:  followerId,
		Before:    models.RowState{Exists: true},
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (s *Service) IsFollowing(ctx context.Context, followerId, followeeId string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryIsFollowing, followerId, followeeId).Scan(&count); err != nil {
		return false, classify(fmt.Errorf("unable to check follow: %w", err))
	}
	return count > 0, nil
}
