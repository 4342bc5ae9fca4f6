package main

import (
	"fmt"

	"qna-coin-ledger-go/internal/api"
	"qna-coin-ledger-go/internal/common"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBalancesCommand(opts *rootOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:     "balances",
		Aliases: []string{"accounts"},
		Short:   "List accounts and their coin balances",
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

			common.PrintHeader(fmt.Sprintf("ACCOUNTS (%d)", len(accounts)), common.DefaultWidth)
			var total int64
			for i, a := range accounts {
				isLast := i == len(accounts)-1
				fmt.Printf("%s%s\n", common.BoxPrefix(isLast), common.FormatAccountLine(a))
				fmt.Printf("%sID: %s\n", common.BoxDetailPrefix(isLast), a.Id)
				total += a.Balance
			}
			common.PrintFooter("Coins in circulation: "+common.FormatCoins(total), common.DefaultWidth)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "only show the account with this email")
	return cmd
}

func newAddUserCommand(opts *rootOptions) *cobra.Command {
	var req api.SignUpRequest
	var admin bool

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Register an account with the initial coin grant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			services, err := common.InitializeServices(ctx, opts.config())
			if err != nil {
				return err
			}
			defer services.Close()

			account, err := services.Ledger.RegisterAccount(ctx, req, admin)
			if err != nil {
				return fmt.Errorf("failed to add user: %s", api.UserMessage(err))
			}

			opts.logger.Info("Account created",
				zap.String("id", account.Id),
				zap.String("email", account.Email),
				zap.Bool("admin", account.IsAdmin))
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", common.FormatAccountLine(common.AccountInfo{
				Id:      account.Id,
				Name:    account.Name,
				Email:   account.Email,
				IsAdmin: account.IsAdmin,
				Balance: account.Balance,
			}))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "initial password")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant moderator rights")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
