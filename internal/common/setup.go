package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"qna-coin-ledger-go/internal/api"
	"qna-coin-ledger-go/internal/database"
	"qna-coin-ledger-go/internal/listener"
	"qna-coin-ledger-go/internal/models"
	"qna-coin-ledger-go/internal/purge"
	"qna-coin-ledger-go/internal/ratelimit"
	"qna-coin-ledger-go/internal/realtime"
	"qna-coin-ledger-go/internal/rules"
	"qna-coin-ledger-go/internal/session"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService     *database.Service
	Hub           *realtime.Hub
	Changes       *listener.ChangeListener
	Engine        *rules.Engine
	Sessions      *session.Manager
	LoginLimiter  *ratelimit.FixedWindow
	SignupLimiter *ratelimit.FixedWindow
	Purge         *purge.Scheduler
	Ledger        *api.LedgerService
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the store, change listener, rules engine and ledger service.
// Nothing is started; callers run the background loops they need.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	costs, err := LoadCosts(cfg.Ledger.RulesFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	zap.L().Info("Loaded engagement costs",
		zap.Int64("like_reward", costs.LikeReward),
		zap.Int64("delete_answer", costs.DeleteAnswer),
		zap.Int64("delete_question", costs.DeleteQuestion),
		zap.Int64("profile_update", costs.ProfileUpdate))

	loc, err := purge.LoadLocation(cfg.Purge.Timezone)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	hub := realtime.NewHub(0)
	changes := listener.NewChangeListener(listener.ChangeListenerConfig{
		DbService:       dbService,
		Hub:             hub,
		LookbackWindow:  cfg.Listener.LookbackWindow,
		PollingInterval: cfg.Listener.PollingInterval,
		CleanupInterval: cfg.Listener.CleanupInterval,
		BatchSize:       cfg.Listener.BatchSize,
	})

	services := &Services{
		DbService:     dbService,
		Hub:           hub,
		Changes:       changes,
		Engine:        rules.NewEngine(costs),
		Sessions:      session.NewManager(cfg.Server.SessionIdleTimeout),
		LoginLimiter:  ratelimit.NewFixedWindow("login", cfg.Limits.LoginMaxAttempts, cfg.Limits.LoginWindow),
		SignupLimiter: ratelimit.NewFixedWindow("signup", cfg.Limits.SignupMaxAttempts, cfg.Limits.SignupWindow),
	}

	services.Purge = purge.NewScheduler(purge.SchedulerConfig{
		DbService:      dbService,
		ScopeAccountId: cfg.Purge.ScopeAccountId,
		Location:       loc,
		Timeout:        cfg.Ledger.StoreTimeout,
		OnSwept:        func(int) { changes.Wake() },
	})

	services.Ledger, err = api.NewLedgerService(api.Config{
		Store:                  dbService,
		Engine:                 services.Engine,
		Hub:                    hub,
		Sessions:               services.Sessions,
		LoginLimiter:           services.LoginLimiter,
		SignupLimiter:          services.SignupLimiter,
		InitialCoins:           cfg.Ledger.InitialCoins,
		StoreTimeout:           cfg.Ledger.StoreTimeout,
		CoordinatorIdleTimeout: cfg.Server.SessionIdleTimeout,
		Wake:                   changes.Wake,
	})
	if err != nil {
		dbService.Close()
		return nil, fmt.Errorf("failed to create ledger service: %w", err)
	}

	return services, nil
}

// InitializeDatabaseOnly initializes just the database service
// Useful for maintenance commands like listing balances or reconciling
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.Hub != nil {
		cs.Hub.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
