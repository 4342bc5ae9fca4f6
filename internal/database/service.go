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
	"errors"
	"fmt"

	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

type Service struct {
	db        *sql.DB
	subledger *SubledgerService
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service, err := newServiceWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.CreateDummyUsers {
		service.createDummyAccounts(ctx)
	} else {
		zap.L().Info("Skipping dummy account creation (CREATE_DUMMY_USERS=false)")
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// newServiceWithDB wraps an open handle and applies both schemas.
func newServiceWithDB(db *sql.DB) (*Service, error) {
	subledger := NewSubledgerService(db)
	service := &Service{db: db, subledger: subledger}
	if err := service.initSchema(); err != nil {
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}
	if err := subledger.InitSchema(); err != nil {
		return nil, fmt.Errorf("unable to initialize subledger schema: %w", err)
	}
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);
	CREATE INDEX IF NOT EXISTS idx_accounts_active ON accounts(active);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		author_id TEXT REFERENCES accounts(id),
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		audio_ref TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		visibility TEXT NOT NULL DEFAULT 'public',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_questions_author ON questions(author_id);
	CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at);

	CREATE TABLE IF NOT EXISTS answers (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL REFERENCES questions(id),
		author_id TEXT NOT NULL REFERENCES accounts(id),
		body TEXT NOT NULL,
		audio_ref TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id);

	CREATE TABLE IF NOT EXISTS likes (
		account_id TEXT NOT NULL REFERENCES accounts(id),
		question_id TEXT NOT NULL REFERENCES questions(id),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (account_id, question_id)
	);

	CREATE INDEX IF NOT EXISTS idx_likes_question ON likes(question_id);

	CREATE TABLE IF NOT EXISTS follows (
		follower_id TEXT NOT NULL REFERENCES accounts(id),
		followee_id TEXT NOT NULL REFERENCES accounts(id),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (follower_id, followee_id),
		CHECK (follower_id != followee_id)
	);

	CREATE INDEX IF NOT EXISTS idx_follows_followee ON follows(followee_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL REFERENCES accounts(id),
		recipient_id TEXT NOT NULL REFERENCES accounts(id),
		body TEXT NOT NULL,
		sent_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		read_at TIMESTAMP,
		purge_marked BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_id);
	CREATE INDEX IF NOT EXISTS idx_messages_purge ON messages(purge_marked, read_at);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL REFERENCES accounts(id),
		actor_id TEXT NOT NULL DEFAULT '',
		question_id TEXT NOT NULL DEFAULT '',
		answer_id TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, is_read);
	CREATE INDEX IF NOT EXISTS idx_notifications_question ON notifications(question_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_answer ON notifications(answer_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Service) createDummyAccounts(ctx context.Context) {
	accounts := []struct {
		name  string
		email string
		admin bool
	}{
		{"Alice Johnson", "alice.johnson@example.com", false},
		{"Bob Smith", "bob.smith@example.com", false},
		{"Carol Williams", "carol.williams@example.com", true},
	}

	for _, a := range accounts {
		created, err := s.CreateAccount(ctx, store.CreateAccountParams{
			Id:           uuid.New().String(),
			Name:         a.name,
			Email:        a.email,
			IsAdmin:      a.admin,
			InitialCoins: 20,
		})
		if err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				continue
			}
			zap.L().Error("Failed to insert dummy account", zap.String("name", a.name), zap.Error(err))
			continue
		}
		zap.L().Info("Dummy account created", zap.String("id", created.Id), zap.String("name", created.Name))
	}
}

// isConstraintViolation reports whether err is a SQLite UNIQUE, PRIMARY KEY or CHECK failure.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrConstraint
}

// constraintError maps a constraint failure to a store sentinel. Foreign key failures mean
// the referenced row is gone, CHECK failures guard self-targeted rows and everything else
// is a uniqueness violation reported as dup.
func constraintError(err error, dup error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	case sqlite3.ErrConstraintCheck:
		return fmt.Errorf("%w: %v", store.ErrSelfActionForbidden, err)
	}
	return fmt.Errorf("%w: %v", dup, err)
}

// classify maps lock contention to store.ErrConflict so callers can retry.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		zap.L().Warn("Failed to roll back transaction", zap.Error(err))
	}
}
