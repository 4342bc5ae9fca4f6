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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// relationColumns maps a watched relation onto the table columns that filters use
type relationColumns struct {
	table   string
	account string
	parent  string
	unread  string
}

var watchedRelations = map[models.Relation]relationColumns{
	models.RelationMessages:      {table: "messages", account: "recipient_id", unread: "read_at IS NULL"},
	models.RelationNotifications: {table: "notifications", account: "recipient_id", unread: "is_read = 0"},
	models.RelationAnswers:       {table: "answers", account: "author_id", parent: "question_id"},
	models.RelationLikes:         {table: "likes", account: "account_id", parent: "question_id"},
	models.RelationFollows:       {table: "follows", account: "followee_id", parent: "follower_id"},
	models.RelationQuestions:     {table: "questions", account: "author_id"},
}

// whereClause renders the filter as SQL conditions on the relation's table
func whereClause(filter models.Filter) (string, string, []any, error) {
	cols, ok := watchedRelations[filter.Relation]
	if !ok {
		return "", "", nil, fmt.Errorf("%w: relation %q", store.ErrUnsupportedFilter, filter.Relation)
	}

	conds := []string{"1 = 1"}
	var args []any
	if filter.AccountId != "" {
		conds = append(conds, cols.account+" = ?")
		args = append(args, filter.AccountId)
	}
	if filter.ParentId != "" {
		if cols.parent == "" {
			return "", "", nil, fmt.Errorf("%w: %s has no parent scope", store.ErrUnsupportedFilter, filter.Relation)
		}
		conds = append(conds, cols.parent+" = ?")
		args = append(args, filter.ParentId)
	}
	if filter.Unread {
		if cols.unread == "" {
			return "", "", nil, fmt.Errorf("%w: %s has no unread state", store.ErrUnsupportedFilter, filter.Relation)
		}
		conds = append(conds, cols.unread)
	}
	if filter.Purgeable {
		if filter.Relation != models.RelationMessages {
			return "", "", nil, fmt.Errorf("%w: only messages can be purged", store.ErrUnsupportedFilter)
		}
		conds = append(conds, "read_at IS NOT NULL", "purge_marked = 1")
	}
	return cols.table, strings.Join(conds, " AND "), args, nil
}

// appendChange writes a change log row in the caller's transaction
func appendChange(ctx context.Context, tx *sql.Tx, ev models.ChangeEvent) error {
	if ev.Id == "" {
		ev.Id = uuid.New().String()
	}
	_, err := tx.ExecContext(ctx, queryInsertChange,
		ev.Id, string(ev.Relation), string(ev.Type), ev.EntityId, ev.AccountId, ev.ParentId,
		ev.Before.Exists, ev.Before.Unread, ev.After.Exists, ev.After.Unread, time.Now().UTC())
	if err != nil {
		return classify(fmt.Errorf("failed to append change event: %w", err))
	}
	return nil
}

// CountWhere returns the number of rows matching the filter together with the change
// log position the count reflects.
func (s *Service) CountWhere(ctx context.Context, filter models.Filter) (models.CountSnapshot, error) {
	table, where, args, err := whereClause(filter)
	if err != nil {
		return models.CountSnapshot{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.CountSnapshot{}, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	var snapshot models.CountSnapshot
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where)
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&snapshot.Count); err != nil {
		return models.CountSnapshot{}, classify(fmt.Errorf("failed to count %s: %w", table, err))
	}
	if err := tx.QueryRowContext(ctx, queryLatestChangeSeq).Scan(&snapshot.AsOfSeq); err != nil {
		return models.CountSnapshot{}, classify(fmt.Errorf("failed to read change position: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return models.CountSnapshot{}, classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	zap.L().Debug("Counted rows",
		zap.String("relation", string(filter.Relation)),
		zap.String("account_id", filter.AccountId),
		zap.String("parent_id", filter.ParentId),
		zap.Int("count", snapshot.Count),
		zap.Int64("as_of_seq", snapshot.AsOfSeq))
	return snapshot, nil
}

// DeleteWhere removes rows matching the filter. Only purgeable messages can be
// bulk-deleted; each removed row gets its own change event.
func (s *Service) DeleteWhere(ctx context.Context, filter models.Filter) (int, error) {
	if filter.Relation != models.RelationMessages || !filter.Purgeable {
		return 0, fmt.Errorf("%w: bulk delete requires purgeable messages", store.ErrUnsupportedFilter)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	query := querySelectPurgeable
	var args []any
	if filter.AccountId != "" {
		query += " AND recipient_id = ?"
		args = append(args, filter.AccountId)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to select purgeable messages: %w", err))
	}
	type target struct{ id, recipientId string }
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.recipientId); err != nil {
			closeRows(rows)
			return 0, fmt.Errorf("failed to scan purgeable message: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		closeRows(rows)
		return 0, fmt.Errorf("error iterating purgeable messages: %w", err)
	}
	closeRows(rows)

	deleted := 0
	for _, t := range targets {
		result, err := tx.ExecContext(ctx, queryDeleteMessage, t.id)
		if err != nil {
			return 0, classify(fmt.Errorf("failed to delete message %s: %w", t.id, err))
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to check rows affected: %w", err)
		}
		if n == 0 {
			continue
		}
		if err := appendChange(ctx, tx, models.ChangeEvent{
			Relation:  models.RelationMessages,
			Type:      models.EventDelete,
			EntityId:  t.id,
			AccountId: t.recipientId,
			Before:    models.RowState{Exists: true},
		}); err != nil {
			return 0, err
		}
		deleted++
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	zap.L().Info("Purged messages",
		zap.String("account_id", filter.AccountId),
		zap.Int("deleted", deleted))
	return deleted, nil
}

// ListChangesSince returns change events with seq greater than afterSeq in seq order
func (s *Service) ListChangesSince(ctx context.Context, afterSeq int64, limit int) ([]models.ChangeEvent, error) {
	rows, err := s.db.QueryContext(ctx, queryListChangesSince, afterSeq, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list change events: %w", err))
	}
	defer closeRows(rows)

	var events []models.ChangeEvent
	for rows.Next() {
		var ev models.ChangeEvent
		var relation, eventType string
		err := rows.Scan(&ev.Seq, &ev.Id, &relation, &eventType, &ev.EntityId, &ev.AccountId, &ev.ParentId,
			&ev.Before.Exists, &ev.Before.Unread, &ev.After.Exists, &ev.After.Unread, &ev.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change event: %w", err)
		}
		ev.Relation = models.Relation(relation)
		ev.Type = models.EventType(eventType)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during change event row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating change event rows: %w", err)
	}

	return events, nil
}

// LatestChangeSeq returns the highest seq in the change log, or zero when empty
func (s *Service) LatestChangeSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, queryLatestChangeSeq).Scan(&seq); err != nil {
		return 0, classify(fmt.Errorf("failed to get latest change seq: %w", err))
	}
	return seq, nil
}
