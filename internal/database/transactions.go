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

// AdjustBalance atomically updates balance and records transaction
func (s *Service) AdjustBalance(ctx context.Context, params store.AdjustBalanceParams) (*models.CoinTransaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer rollback(tx)

	transaction, err := s.subledger.applyDelta(ctx, tx, params)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return transaction, nil
}

// applyDelta moves the balance of one account inside an open transaction. A zero delta
// records nothing and returns a nil transaction.
func (s *SubledgerService) applyDelta(ctx context.Context, tx *sql.Tx, params store.AdjustBalanceParams) (*models.CoinTransaction, error) {
	zap.L().Info("Processing coin transaction",
		zap.String("account_id", params.AccountId),
		zap.String("kind", params.Kind),
		zap.Int64("delta", params.Delta),
		zap.String("reference", params.Reference))

	if params.Delta == 0 {
		return nil, nil
	}

	// Check for duplicate reference
	if params.Reference != "" {
		var existingTxId string
		err := tx.QueryRowContext(ctx, queryCheckDuplicateTransaction, params.Reference).Scan(&existingTxId)
		if err == nil {
			zap.L().Warn("Duplicate transaction reference detected, skipping",
				zap.String("reference", params.Reference),
				zap.String("existing_tx_id", existingTxId))
			return nil, fmt.Errorf("%w: reference %s already exists", store.ErrDuplicateTransaction, params.Reference)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, classify(fmt.Errorf("failed to check for duplicate transaction: %w", err))
		}
	}

	var currentBalance, version int64
	err := tx.QueryRowContext(ctx, queryGetCoinBalance, params.AccountId).Scan(&currentBalance, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no balance for account %s", store.ErrNotFound, params.AccountId)
	} else if err != nil {
		return nil, classify(fmt.Errorf("failed to get current balance: %w", err))
	}

	delta := params.Delta
	newBalance := currentBalance + delta
	if newBalance < 0 {
		if !params.AllowClamp {
			return nil, store.NewInsufficientFunds(-delta, currentBalance)
		}
		zap.L().Warn("Clamping debit to available balance",
			zap.String("account_id", params.AccountId),
			zap.Int64("requested", delta),
			zap.Int64("available", currentBalance))
		delta = -currentBalance
		newBalance = 0
		if delta == 0 {
			return nil, nil
		}
	}

	transactionId := uuid.New().String()
	now := time.Now().UTC()
	transaction := &models.CoinTransaction{
		Id:            transactionId,
		AccountId:     params.AccountId,
		Kind:          params.Kind,
		Amount:        delta,
		BalanceBefore: currentBalance,
		BalanceAfter:  newBalance,
		Reference:     params.Reference,
		Reason:        params.Reason,
		CreatedAt:     now,
	}

	_, err = tx.ExecContext(ctx, queryInsertTransaction,
		transaction.Id, transaction.AccountId, transaction.Kind, transaction.Amount,
		transaction.BalanceBefore, transaction.BalanceAfter, transaction.Reference, transaction.Reason, now)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("%w: reference %s already exists", store.ErrDuplicateTransaction, params.Reference)
		}
		return nil, classify(fmt.Errorf("failed to insert transaction: %w", err))
	}

	// Update coin balance (with optimistic locking)
	result, err := tx.ExecContext(ctx, queryUpdateCoinBalance, newBalance, transactionId, now, params.AccountId, version)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to update balance: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConflict)
	}

	if err := appendChange(ctx, tx, models.ChangeEvent{
		Relation:  models.RelationBalances,
		Type:      models.EventUpdate,
		EntityId:  params.AccountId,
		AccountId: params.AccountId,
		Before:    models.RowState{Exists: true},
		After:     models.RowState{Exists: true},
	}); err != nil {
		return nil, err
	}

	zap.L().Info("Coin transaction processed successfully",
		zap.String("transaction_id", transactionId),
		zap.String("account_id", params.AccountId),
		zap.Int64("old_balance", currentBalance),
		zap.Int64("new_balance", newBalance))

	return transaction, nil
}

// GetTransactionHistory returns paginated transaction history for an account
func (s *Service) GetTransactionHistory(ctx context.Context, accountId string, limit, offset int) ([]models.CoinTransaction, error) {
	zap.L().Debug("Getting transaction history",
		zap.String("account_id", accountId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, accountId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer closeRows(rows)

	var transactions []models.CoinTransaction
	for rows.Next() {
		var tx models.CoinTransaction
		err := rows.Scan(&tx.Id, &tx.AccountId, &tx.Kind, &tx.Amount,
			&tx.BalanceBefore, &tx.BalanceAfter, &tx.Reference, &tx.Reason, &tx.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return transactions, nil
}
