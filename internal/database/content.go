package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanQuestion(row rowScanner) (*models.Question, error) {
	var q models.Question
	var tags, visibility string
	err := row.Scan(&q.Id, &q.AuthorId, &q.Title, &q.Body, &q.AudioRef, &tags, &visibility,
		&q.LikeCount, &q.AnswerCount, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &q.Tags); err != nil {
		return nil, fmt.Errorf("failed to parse tags for question %s: %w", q.Id, err)
	}
	q.Visibility = models.Visibility(visibility)
	return &q, nil
}

func scanAnswer(row rowScanner) (*models.Answer, error) {
	var a models.Answer
	if err := row.Scan(&a.Id, &a.QuestionId, &a.AuthorId, &a.Body, &a.AudioRef, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) CreateQuestion(ctx context.Context, params store.CreateQuestionParams) (*models.Question, error) {
	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	visibility := params.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}

	var authorId any
	if params.AuthorId != "" {
		authorId = params.AuthorId
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	questionId := uuid.New().String()
	_, err = tx.ExecContext(ctx, queryInsertQuestion, questionId, authorId, params.Title, params.Body,
		params.AudioRef, string(encodedTags), string(visibility), time.Now().UTC())
	if err != nil {
		return nil, classify(fmt.Errorf("unable to insert question: %w", err))
	}

	if err := appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationQuestions,
		Type:      models.EventInsert,
		EntityId:  questionId,
		AccountId: params.AuthorId,
		After:     models.RowState{Exists: true},
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	zap.L().Info("Question created", zap.String("question_id", questionId), zap.Bool("anonymous", params.AuthorId == ""))
	return s.GetQuestion(ctx, questionId)
}

func (s *Service) GetQuestion(ctx context.Context, questionId string) (*models.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx, queryGetQuestion, questionId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: question %s", store.ErrNotFound, questionId)
		}
		return nil, classify(fmt.Errorf("unable to query question: %w", err))
	}
	return q, nil
}

// ListQuestions returns the feed visible to the viewer, newest first
func (s *Service) ListQuestions(ctx context.Context, params store.ListQuestionsParams) ([]models.Question, error) {
	conds := []string{
		`(q.visibility = 'public' OR q.author_id = ?
		  OR q.author_id IN (SELECT followee_id FROM follows WHERE follower_id = ?))`,
	}
	args := []any{params.ViewerId, params.ViewerId}
	if params.FollowingOnly {
		conds = append(conds, "q.author_id IN (SELECT followee_id FROM follows WHERE follower_id = ?)")
		args = append(args, params.ViewerId)
	}
	if params.Tag != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(q.tags) WHERE json_each.value = ?)")
		args = append(args, params.Tag)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, params.Offset)

	query := querySelectQuestion + " WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY q.created_at DESC, q.rowid DESC LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("unable to list questions: %w", err))
	}
	defer closeRows(rows)

	var questions []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan question row: %w", err)
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during question row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating question rows: %w", err)
	}
	return questions, nil
}

// CreateAnswer inserts the answer and notifies the question author
func (s *Service) CreateAnswer(ctx context.Context, params store.CreateAnswerParams) (*models.Answer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	var questionAuthor string
	err = tx.QueryRowContext(ctx, "SELECT COALESCE(author_id, '') FROM questions WHERE id = ?", params.QuestionId).Scan(&questionAuthor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: question %s", store.ErrNotFound, params.QuestionId)
	} else if err != nil {
		return nil, classify(fmt.Errorf("unable to query question: %w", err))
	}

	now := time.Now().UTC()
	answerId := uuid.New().String()
	_, err = tx.ExecContext(ctx, queryInsertAnswer, answerId, params.QuestionId, params.AuthorId, params.Body, params.AudioRef, now)
	if err != nil {
		return nil, classify(fmt.Errorf("unable to insert answer: %w", err))
	}

	if err := appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationAnswers,
		Type:      models.EventInsert,
		EntityId:  answerId,
		AccountId: params.AuthorId,
		ParentId:  params.QuestionId,
		After:     models.RowState{Exists: true},
	}); err != nil {
		return nil, err
	}

	if questionAuthor != "" && questionAuthor != params.AuthorId {
		if err := insertNotification(ctx, tx, models.Notification{
			RecipientId: questionAuthor,
			ActorId:     params.AuthorId,
			QuestionId:  params.QuestionId,
			AnswerId:    answerId,
			Type:        models.NotificationAnswer,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	zap.L().Info("Answer created", zap.String("answer_id", answerId), zap.String("question_id", params.QuestionId))
	return s.GetAnswer(ctx, answerId)
}

func (s *Service) GetAnswer(ctx context.Context, answerId string) (*models.Answer, error) {
	a, err := scanAnswer(s.db.QueryRowContext(ctx, queryGetAnswer, answerId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: answer %s", store.ErrNotFound, answerId)
		}
		return nil, classify(fmt.Errorf("unable to query answer: %w", err))
	}
	return a, nil
}

func (s *Service) ListAnswers(ctx context.Context, questionId string) ([]models.Answer, error) {
	rows, err := s.db.QueryContext(ctx, queryListAnswers, questionId)
	if err != nil {
		return nil, classify(fmt.Errorf("unable to list answers: %w", err))
	}
	defer closeRows(rows)

	var answers []models.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan answer row: %w", err)
		}
		answers = append(answers, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answer rows: %w", err)
	}
	return answers, nil
}

// DeleteAnswer charges the actor and removes the answer with its notifications.
// Nothing is deleted when the charge fails.
func (s *Service) DeleteAnswer(ctx context.Context, params store.DeleteContentParams) error {
	zap.L().Info("Deleting answer",
		zap.String("answer_id", params.Id),
		zap.String("actor_id", params.ActorId),
		zap.Int64("cost", params.Cost))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	answer, err := scanAnswer(tx.QueryRowContext(ctx, queryGetAnswer, params.Id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: answer %s", store.ErrNotFound, params.Id)
	} else if err != nil {
		return classify(fmt.Errorf("unable to query answer: %w", err))
	}

	if _, err := s.subledger.applyDelta(ctx, tx, store.AdjustBalanceParams{
		AccountId: params.ActorId,
		Delta:     -params.Cost,
		Kind:      models.KindDeleteAnswer,
		Reference: params.Reference,
		Reason:    "deleted answer " + params.Id,
	}); err != nil {
		return err
	}

	if err := deleteAnswerRows(ctx, tx, answer); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	zap.L().Info("Answer deleted", zap.String("answer_id", params.Id))
	return nil
}

// DeleteQuestion charges the actor and removes the question with its answers, likes
// and notifications. Nothing is deleted when the charge fails.
func (s *Service) DeleteQuestion(ctx context.Context, params store.DeleteContentParams) error {
	zap.L().Info("Deleting question",
		zap.String("question_id", params.Id),
		zap.String("actor_id", params.ActorId),
		zap.Int64("cost", params.Cost))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	question, err := scanQuestion(tx.QueryRowContext(ctx, queryGetQuestion, params.Id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: question %s", store.ErrNotFound, params.Id)
	} else if err != nil {
		return classify(fmt.Errorf("unable to query question: %w", err))
	}

	if _, err := s.subledger.applyDelta(ctx, tx, store.AdjustBalanceParams{
		AccountId: params.ActorId,
		Delta:     -params.Cost,
		Kind:      models.KindDeleteQuestion,
		Reference: params.Reference,
		Reason:    "deleted question " + params.Id,
	}); err != nil {
		return err
	}

	answers, err := collectAnswers(ctx, tx, params.Id)
	if err != nil {
		return err
	}
	for i := range answers {
		if err := deleteAnswerRows(ctx, tx, &answers[i]); err != nil {
			return err
		}
	}

	if err := deleteNotificationsWhere(ctx, tx, querySelectNotificationsForQuestion, params.Id); err != nil {
		return err
	}

	likers, err := collectStrings(ctx, tx, queryListQuestionLikes, params.Id)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, queryDeleteQuestionLikes, params.Id); err != nil {
		return classify(fmt.Errorf("unable to delete likes: %w", err))
	}
	for _, liker := range likers {
		if err := appendChange(ctx, tx, models.ChangeEvent{
			Relation:  models.RelationLikes,
			Type:      models.EventDelete,
			EntityId:  liker + ":" + params.Id,
			AccountId: liker,
			ParentId:  params.Id,
			Before:    models.RowState{Exists: true},
		}); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, queryDeleteQuestion, params.Id); err != nil {
		return classify(fmt.Errorf("unable to delete question: %w", err))
	}
	if err := appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationQuestions,
		Type:      models.EventDelete,
		EntityId:  params.Id,
		AccountId: question.AuthorId,
		Before:    models.RowState{Exists: true},
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	zap.L().Info("Question deleted",
		zap.String("question_id", params.Id),
		zap.Int("answers", len(answers)),
		zap.Int("likes", len(likers)))
	return nil
}

func deleteAnswerRows(ctx context.Context, tx *sql.Tx, answer *models.Answer) error {
	if err := deleteNotificationsWhere(ctx, tx, querySelectNotificationsForAnswer, answer.Id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, queryDeleteAnswer, answer.Id); err != nil {
		return classify(fmt.Errorf("unable to delete answer: %w", err))
	}
	return appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationAnswers,
		Type:      models.EventDelete,
		EntityId:  answer.Id,
		AccountId: answer.AuthorId,
		ParentId:  answer.QuestionId,
		Before:    models.RowState{Exists: true},
	})
}

func collectAnswers(ctx context.Context, tx *sql.Tx, questionId string) ([]models.Answer, error) {
	rows, err := tx.QueryContext(ctx, queryListAnswers, questionId)
	if err != nil {
		return nil, classify(fmt.Errorf("unable to list answers: %w", err))
	}
	defer closeRows(rows)

	var answers []models.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan answer row: %w", err)
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

func collectStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("unable to query: %w", err))
	}
	defer closeRows(rows)

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("unable to scan row: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
