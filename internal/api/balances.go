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

package api

import (
	"context"
	"errors"
	"fmt"

	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/store"

	"go.uber.org/zap"
)

// GetUserBalance returns the current coin balance for an account
func (s *LedgerService) GetUserBalance(ctx context.Context, accountId string) (int64, error) {
	if accountId == "" {
		return 0, invalid("account_id is required")
	}

	balance, err := s.db.GetBalance(ctx, accountId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, err
		}
		zap.L().Error("Failed to get account balance",
			zap.String("account_id", accountId),
			zap.Error(err))
		return 0, fmt.Errorf("failed to retrieve balance")
	}

	return balance, nil
}

// GetTransactionHistory returns paginated coin history for an account, newest first
func (s *LedgerService) GetTransactionHistory(ctx context.Context, accountId string, limit, offset int) ([]models.TransactionRecord, error) {
	if accountId == "" {
		return nil, invalid("account_id is required")
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	transactions, err := s.db.GetTransactionHistory(ctx, accountId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("account_id", accountId),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve transaction history")
	}

	result := make([]models.TransactionRecord, len(transactions))
	for i, tx := range transactions {
		result[i] = models.TransactionRecord{
			Id:           tx.Id,
			Kind:         tx.Kind,
			Amount:       tx.Amount,
			BalanceAfter: tx.BalanceAfter,
			Reason:       tx.Reason,
			CreatedAt:    tx.CreatedAt,
		}
	}

	return result, nil
}
