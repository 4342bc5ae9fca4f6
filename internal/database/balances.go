package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"qna-coin-ledger-go/internal/store"

	"go.uber.org/zap"
)

// GetBalance returns the current coin balance for an account (O(1) lookup)
func (s *Service) GetBalance(ctx context.Context, accountId string) (int64, error) {
	zap.L().Debug("Getting balance", zap.String("account_id", accountId))

	var balance int64
	err := s.db.QueryRowContext(ctx, queryGetBalance, accountId).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: no balance for account %s", store.ErrNotFound, accountId)
	}
	if err != nil {
		zap.L().Error("Failed to get balance", zap.String("account_id", accountId), zap.Error(err))
		return 0, classify(fmt.Errorf("failed to get balance: %w", err))
	}

	zap.L().Debug("Retrieved balance", zap.String("account_id", accountId), zap.Int64("balance", balance))
	return balance, nil
}

// ReconcileBalance verifies that current balance matches sum of all transactions
func (s *Service) ReconcileBalance(ctx context.Context, accountId string) error {
	zap.L().Info("Reconciling balance", zap.String("account_id", accountId))

	currentBalance, err := s.GetBalance(ctx, accountId)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	// Calculate balance from transaction history
	var calculatedBalance int64
	err = s.db.QueryRowContext(ctx, queryReconcileBalance, accountId).Scan(&calculatedBalance)
	if err != nil {
		return fmt.Errorf("failed to calculate balance from transactions: %w", err)
	}

	if currentBalance != calculatedBalance {
		zap.L().Error("Balance reconciliation failed",
			zap.String("account_id", accountId),
			zap.Int64("current_balance", currentBalance),
			zap.Int64("calculated_balance", calculatedBalance),
			zap.Int64("difference", currentBalance-calculatedBalance))
		return fmt.Errorf("balance mismatch: current=%d, calculated=%d", currentBalance, calculatedBalance)
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("account_id", accountId),
		zap.Int64("balance", currentBalance))
	return nil
}
