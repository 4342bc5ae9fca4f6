package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) SendMessage(ctx context.Context, params store.SendMessageParams) (*models.Message, error) {
	if params.SenderId == params.RecipientId {
		return nil, fmt.Errorf("%w: message to self", store.ErrSelfActionForbidden)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	message := &models.Message{
		Id:          uuid.New().String(),
		SenderId:    params.SenderId,
		RecipientId: params.RecipientId,
		Body:        params.Body,
		SentAt:      time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, queryInsertMessage, message.Id, message.SenderId, message.RecipientId, message.Body, message.SentAt)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, constraintError(err, store.ErrAlreadyExists)
		}
		return nil, classify(fmt.Errorf("unable to insert message: %w", err))
	}

	if err := appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationMessages,
		Type:      models.EventInsert,
		EntityId:  message.Id,
		AccountId: message.RecipientId,
		After:     models.RowState{Exists: true, Unread: true},
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	zap.L().Info("Message sent",
		zap.String("message_id", message.Id),
		zap.String("sender_id", message.SenderId),
		zap.String("recipient_id", message.RecipientId))
	return message, nil
}

type messageState struct {
	recipientId string
	readAt      sql.NullTime
	purgeMarked bool
}

func loadMessageState(ctx context.Context, tx *sql.Tx, messageId, recipientId string) (*messageState, error) {
	var state messageState
	err := tx.QueryRowContext(ctx, queryGetMessageState, messageId).Scan(&state.recipientId, &state.readAt, &state.purgeMarked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %s", store.ErrNotFound, messageId)
	} else if err != nil {
		return nil, classify(fmt.Errorf("unable to query message: %w", err))
	}
	if state.recipientId != recipientId {
		return nil, fmt.Errorf("%w: message %s belongs to another inbox", store.ErrPermissionDenied, messageId)
	}
	return &state, nil
}

// MarkMessageRead sets read_at once. Marking an already read message is a no-op.
func (s *Service) MarkMessageRead(ctx context.Context, messageId, recipientId string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	state, err := loadMessageState(ctx, tx, messageId, recipientId)
	if err != nil {
		return err
	}
	if state.readAt.Valid {
		return nil
	}

	if _, err := tx.ExecContext(ctx, queryMarkMessageRead, time.Now().UTC(), messageId); err != nil {
		return classify(fmt.Errorf("unable to mark message read: %w", err))
	}
	if err := appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationMessages,
		Type:      models.EventUpdate,
		EntityId:  messageId,
		AccountId: recipientId,
		Before:    models.RowState{Exists: true, Unread: true},
		After:     models.RowState{Exists: true},
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	zap.L().Debug("Message marked read", zap.String("message_id", messageId))
	return nil
}

// MarkMessageForPurge flags the message so the nightly sweep removes it once read
func (s *Service) MarkMessageForPurge(ctx context.Context, messageId, recipientId string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	state, err := loadMessageState(ctx, tx, messageId, recipientId)
	if err != nil {
		return err
	}
	if state.purgeMarked {
		return nil
	}

	if _, err := tx.ExecContext(ctx, queryMarkMessageForPurge, messageId); err != nil {
		return classify(fmt.Errorf("unable to mark message for purge: %w", err))
	}
	unread := !state.readAt.Valid
	if err := appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationMessages,
		Type:      models.EventUpdate,
		EntityId:  messageId,
		AccountId: recipientId,
		Before:    models.RowState{Exists: true, Unread: unread},
		After:     models.RowState{Exists: true, Unread: unread},
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	zap.L().Debug("Message marked for purge", zap.String("message_id", messageId))
	return nil
}

// ListMessages returns messages sent to or by the account, newest first
func (s *Service) ListMessages(ctx context.Context, accountId string, limit, offset int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, queryListMessages, accountId, accountId, limit, offset)
	if err != nil {
		return nil, classify(fmt.Errorf("unable to list messages: %w", err))
	}
	defer closeRows(rows)

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var readAt sql.NullTime
		if err := rows.Scan(&m.Id, &m.SenderId, &m.RecipientId, &m.Body, &m.SentAt, &readAt, &m.PurgeMarked); err != nil {
			return nil, fmt.Errorf("unable to scan message row: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time
			m.ReadAt = &t
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during message row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

func (s *Service) ListNotifications(ctx context.Context, accountId string, limit, offset int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, queryListNotifications, accountId, limit, offset)
	if err != nil {
		return nil, classify(fmt.Errorf("unable to list notifications: %w", err))
	}
	defer closeRows(rows)

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		var notificationType string
		if err := rows.Scan(&n.Id, &n.RecipientId, &n.ActorId, &n.QuestionId, &n.AnswerId,
			&notificationType, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan notification row: %w", err)
		}
		n.Type = models.NotificationType(notificationType)
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}
	return notifications, nil
}

// MarkNotificationsRead marks the account's unread notifications as read, limited to one
// question when questionId is set, and returns how many changed.
func (s *Service) MarkNotificationsRead(ctx context.Context, accountId, questionId string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	query := "SELECT id FROM notifications WHERE recipient_id = ? AND is_read = 0"
	args := []any{accountId}
	if questionId != "" {
		query += " AND question_id = ?"
		args = append(args, questionId)
	}
	ids, err := collectStrings(ctx, tx, query, args...)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, id := range ids {
		result, err := tx.ExecContext(ctx, queryMarkNotificationRead, id)
		if err != nil {
			return 0, classify(fmt.Errorf("unable to mark notification read: %w", err))
		}
		if n, _ := result.RowsAffected(); n == 0 {
			continue
		}
		if err := appendChange(ctx, tx, models.ChangeEvent{
			Relation:  models.RelationNotifications,
			Type:      models.EventUpdate,
			EntityId:  id,
			AccountId: accountId,
			ParentId:  questionId,
			Before:    models.RowState{Exists: true, Unread: true},
			After:     models.RowState{Exists: true},
		}); err != nil {
			return 0, err
		}
		marked++
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return marked, nil
}

func insertNotification(ctx context.Context, tx *sql.Tx, n models.Notification) error {
	id := uuid.New().String()
	_, err := tx.ExecContext(ctx, queryInsertNotification, id, n.RecipientId, n.ActorId, n.QuestionId, n.AnswerId,
		string(n.Type), time.Now().UTC())
	if err != nil {
		return classify(fmt.Errorf("unable to insert notification: %w", err))
	}
	return appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationNotifications,
		Type:      models.EventInsert,
		EntityId:  id,
		AccountId: n.RecipientId,
		ParentId:  n.QuestionId,
		After:     models.RowState{Exists: true, Unread: true},
	})
}

// deleteNotificationsWhere removes the notifications selected by query and logs one
// delete event per row.
func deleteNotificationsWhere(ctx context.Context, tx *sql.Tx, query string, arg string) error {
	rows, err := tx.QueryContext(ctx, query, arg)
	if err != nil {
		return classify(fmt.Errorf("unable to select notifications: %w", err))
	}
	type target struct {
		id, recipientId string
		read            bool
	}
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.recipientId, &t.read); err != nil {
			closeRows(rows)
			return fmt.Errorf("unable to scan notification: %w", err)
		}
		targets = append(targets, t)
	}
	err = rows.Err()
	closeRows(rows)
	if err != nil {
		return fmt.Errorf("error iterating notifications: %w", err)
	}

	for _, t := range targets {
		if _, err := tx.ExecContext(ctx, queryDeleteNotification, t.id); err != nil {
			return classify(fmt.Errorf("unable to delete notification: %w", err))
		}
		if err := appendChange(ctx, tx, models.ChangeEvent{
			Relation:  models.RelationNotifications,
			Type:      models.EventDelete,
			EntityId:  t.id,
			AccountId: t.recipientId,
			Before:    models.RowState{Exists: true, Unread: !t.read},
		}); err != nil {
			return err
		}
	}
	return nil
}
