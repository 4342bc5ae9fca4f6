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
	"strings"
	"time"

	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/store"

	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	err := row.Scan(&account.Id, &account.Name, &account.Email, &account.PasswordHash, &account.AvatarUrl,
		&account.IsAdmin, &account.Balance, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Service) GetAccounts(ctx context.Context) ([]models.Account, error) {
	zap.L().Debug("Querying active accounts")

	rows, err := s.db.QueryContext(ctx, queryGetActiveAccounts)
	if err != nil {
		zap.L().Error("Failed to query accounts", zap.Error(err))
		return nil, classify(fmt.Errorf("unable to query accounts: %w", err))
	}
	defer closeRows(rows)

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			zap.L().Error("Failed to scan account row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan account row: %w", err)
		}
		accounts = append(accounts, *account)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during account row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	zap.L().Info("Retrieved accounts", zap.Int("count", len(accounts)))
	return accounts, nil
}

func (s *Service) GetAccount(ctx context.Context, accountId string) (*models.Account, error) {
	zap.L().Debug("Querying account by ID", zap.String("account_id", accountId))

	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountById, accountId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, accountId)
		}
		zap.L().Error("Failed to query account by ID", zap.String("account_id", accountId), zap.Error(err))
		return nil, classify(fmt.Errorf("unable to query account by ID: %w", err))
	}

	return account, nil
}

func (s *Service) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	zap.L().Debug("Querying account by email", zap.String("email", email))

	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountByEmail, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, email)
		}
		zap.L().Error("Failed to query account by email", zap.String("email", email), zap.Error(err))
		return nil, classify(fmt.Errorf("unable to query account by email: %w", err))
	}

	return account, nil
}

// CreateAccount inserts the account, opens its balance and records the sign-up grant
func (s *Service) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	zap.L().Info("Creating account",
		zap.String("id", params.Id),
		zap.String("name", params.Name),
		zap.String("email", params.Email))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, queryInsertAccount,
		params.Id, params.Name, params.Email, params.PasswordHash, params.IsAdmin, now, now)
	if err != nil {
		if isConstraintViolation(err) {
			if strings.Contains(err.Error(), "accounts.name") {
				return nil, fmt.Errorf("%w: %s", store.ErrNameTaken, params.Name)
			}
			return nil, fmt.Errorf("%w: account with email %s", store.ErrAlreadyExists, params.Email)
		}
		zap.L().Error("Failed to insert account", zap.String("email", params.Email), zap.Error(err))
		return nil, classify(fmt.Errorf("unable to insert account: %w", err))
	}

	if _, err := tx.ExecContext(ctx, queryInsertCoinBalance, params.Id, now); err != nil {
		return nil, classify(fmt.Errorf("unable to create coin balance: %w", err))
	}

	if _, err := s.subledger.applyDelta(ctx, tx, store.AdjustBalanceParams{
		AccountId: params.Id,
		Delta:     params.InitialCoins,
		Kind:      models.KindGrant,
		Reference: "grant-" + params.Id,
		Reason:    "sign-up grant",
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	zap.L().Info("Account created successfully", zap.String("id", params.Id), zap.Int64("balance", params.InitialCoins))
	return s.GetAccount(ctx, params.Id)
}

// NameTaken reports whether another account already uses name, ignoring case
func (s *Service) NameTaken(ctx context.Context, name, exceptAccountId string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryNameTaken, name, exceptAccountId).Scan(&count); err != nil {
		return false, classify(fmt.Errorf("unable to check name: %w", err))
	}
	return count > 0, nil
}

// UpdateProfile charges the profile cost and applies the change in one transaction
func (s *Service) UpdateProfile(ctx context.Context, params store.UpdateProfileParams) (*models.Account, error) {
	zap.L().Info("Updating profile",
		zap.String("account_id", params.AccountId),
		zap.String("name", params.Name),
		zap.Int64("cost", params.Cost))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	var taken int
	if err := tx.QueryRowContext(ctx, queryNameTaken, params.Name, params.AccountId).Scan(&taken); err != nil {
		return nil, classify(fmt.Errorf("unable to check name: %w", err))
	}
	if taken > 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrNameTaken, params.Name)
	}

	if _, err := s.subledger.applyDelta(ctx, tx, store.AdjustBalanceParams{
		AccountId: params.AccountId,
		Delta:     -params.Cost,
		Kind:      models.KindProfileUpdate,
		Reference: params.Reference,
		Reason:    "profile update",
	}); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, queryUpdateProfile, params.Name, params.AvatarUrl, time.Now().UTC(), params.AccountId)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrNameTaken, params.Name)
		}
		return nil, classify(fmt.Errorf("unable to update profile: %w", err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, params.AccountId)
	}

	account, err := scanAccount(tx.QueryRowContext(ctx, queryGetAccountById, params.AccountId))
	if err != nil {
		return nil, classify(fmt.Errorf("unable to read updated account: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	zap.L().Info("Profile updated successfully", zap.String("account_id", params.AccountId))
	return account, nil
}
