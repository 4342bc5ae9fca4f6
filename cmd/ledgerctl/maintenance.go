package main

import (
	"fmt"

	"qna-coin-ledger-go/internal/common"
	"qna-coin-ledger-go/internal/purge"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPurgeCommand(opts *rootOptions) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete read messages marked for purge now instead of at midnight",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.config()
			dbService, err := common.InitializeDatabaseOnly(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer dbService.Close()

			scope := cfg.Purge.ScopeAccountId
			if account != "" {
				scope = account
			}
			scheduler := purge.NewScheduler(purge.SchedulerConfig{
				DbService:      dbService,
				ScopeAccountId: scope,
				Timeout:        cfg.Ledger.StoreTimeout,
			})
			deleted, err := scheduler.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d message(s)\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "only purge this account's inbox")
	return cmd
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check cached balances against the transaction log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dbService, err := common.InitializeDatabaseOnly(ctx, opts.config())
			if err != nil {
				return err
			}
			defer dbService.Close()

			accounts, err := common.InitializeAccounts(ctx, dbService, email, opts.logger)
			if err != nil {
				return err
			}

			failed := 0
			for _, a := range accounts {
				if err := dbService.ReconcileBalance(ctx, a.Id); err != nil {
					failed++
					opts.logger.Error("Balance mismatch", zap.String("account_id", a.Id), zap.Error(err))
					fmt.Fprintf(cmd.OutOrStdout(), "MISMATCH %s: %v\n", a.Email, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok       %s\n", a.Email)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d account(s) failed reconciliation", failed, len(accounts))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "only reconcile the account with this email")
	return cmd
}
