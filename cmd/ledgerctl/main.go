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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"qna-coin-ledger-go/internal/common"
	"qna-coin-ledger-go/internal/config"
	"qna-coin-ledger-go/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootOptions holds state shared by every subcommand
type rootOptions struct {
	dbPath string
	cfg    *models.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	var loggerCleanup func()

	cmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Maintenance commands for the Q&A coin ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			opts.cfg = cfg
			opts.logger, loggerCleanup = common.InitializeLogger()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if loggerCleanup != nil {
				loggerCleanup()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "database path (overrides DATABASE_PATH)")

	cmd.AddCommand(newBalancesCommand(opts))
	cmd.AddCommand(newAddUserCommand(opts))
	cmd.AddCommand(newPurgeCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))

	return cmd
}

// config returns the loaded configuration with command-line overrides applied
func (o *rootOptions) config() *models.Config {
	if o.dbPath != "" {
		o.cfg.Database.Path = o.dbPath
	}
	return o.cfg
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
