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
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qna-coin-ledger-go/internal/common"
	"qna-coin-ledger-go/internal/config"
	"qna-coin-ledger-go/internal/server"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting Q&A coin ledger server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if err := services.Changes.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start change listener", zap.Error(err))
	}

	srv := server.New(services.Ledger, cfg.Server)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		services.Purge.Run(gctx)
		return nil
	})
	g.Go(func() error {
		services.LoginLimiter.Run(gctx, cfg.Limits.CleanupInterval)
		return nil
	})
	g.Go(func() error {
		services.SignupLimiter.Run(gctx, cfg.Limits.CleanupInterval)
		return nil
	})
	g.Go(func() error {
		services.Sessions.Run(gctx, cfg.Limits.CleanupInterval)
		return nil
	})
	g.Go(func() error {
		services.Ledger.Run(gctx, cfg.Limits.CleanupInterval)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	zap.L().Info("Server running", zap.String("addr", cfg.Server.Addr))
	zap.L().Info("Press Ctrl+C to stop")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Error("Server stopped with error", zap.Error(err))
	}

	zap.L().Info("Shutdown signal received, stopping change listener...")

	done := make(chan struct{})
	go func() {
		services.Changes.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Change listener stopped gracefully")
	case <-time.After(30 * time.Second):
		zap.L().Warn("Forced shutdown after timeout")
	}
}
