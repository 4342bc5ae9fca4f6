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

package common

import (
	"context"
	"fmt"

	"qna-coin-ledger-go/internal/store"

	"go.uber.org/zap"
)

// AccountInfo represents simplified account information for command-line utilities
type AccountInfo struct {
	Id      string
	Name    string
	Email   string
	IsAdmin bool
	Balance int64
}

// InitializeAccounts retrieves accounts based on an optional email filter.
// If emailFilter is provided, returns the single account with that email.
// If emailFilter is empty, returns all accounts.
func InitializeAccounts(ctx context.Context, dbService store.LedgerStore, emailFilter string, logger *zap.Logger) ([]AccountInfo, error) {
	var accounts []AccountInfo

	if emailFilter != "" {
		logger.Info("Looking up account by email", zap.String("email", emailFilter))
		account, err := dbService.GetAccountByEmail(ctx, emailFilter)
		if err != nil {
			return nil, fmt.Errorf("account not found: %w", err)
		}
		accounts = append(accounts, AccountInfo{
			Id:      account.Id,
			Name:    account.Name,
			Email:   account.Email,
			IsAdmin: account.IsAdmin,
			Balance: account.Balance,
		})
	} else {
		all, err := dbService.GetAccounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get accounts: %w", err)
		}
		for _, a := range all {
			accounts = append(accounts, AccountInfo{
				Id:      a.Id,
				Name:    a.Name,
				Email:   a.Email,
				IsAdmin: a.IsAdmin,
				Balance: a.Balance,
			})
		}
	}

	logger.Info("Retrieved accounts", zap.Int("count", len(accounts)))
	return accounts, nil
}
