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

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"qna-coin-ledger-go/internal/api"
	"qna-coin-ledger-go/internal/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server is the HTTP and WebSocket front of LedgerService
type Server struct {
	svc     *api.LedgerService
	cfg     models.ServerConfig
	limiter *IPRateLimiter
	router  *gin.Engine
}

func New(svc *api.LedgerService, cfg models.ServerConfig) *Server {
	s := &Server{
		svc:     svc,
		cfg:     cfg,
		limiter: NewIPRateLimiter(rate.Limit(cfg.WriteRPS), cfg.WriteBurst),
		router:  gin.New(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	router := s.router

	router.Use(ZapLogger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := s.cfg.CorsOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: corsOrigin != "*",
	}))

	router.GET("/healthz", s.health)
	router.GET("/ws", AuthMiddleware(s.svc), s.streamCounts)

	apiGroup := router.Group("/api", RateLimitMiddleware(s.limiter))
	{
		apiGroup.POST("/auth/signup", s.signUp)
		apiGroup.POST("/auth/login", s.login)
	}

	authed := apiGroup.Group("", AuthMiddleware(s.svc))
	{
		authed.POST("/auth/logout", s.logout)

		authed.GET("/me", s.me)
		authed.PATCH("/me", s.updateProfile)
		authed.GET("/me/balance", s.balance)
		authed.GET("/me/transactions", s.transactions)

		authed.GET("/accounts/:id", s.profile)
		authed.POST("/accounts/:id/follow", s.follow)
		authed.DELETE("/accounts/:id/follow", s.unfollow)

		authed.GET("/questions", s.listQuestions)
		authed.POST("/questions", s.postQuestion)
		authed.GET("/questions/:id", s.getQuestion)
		authed.DELETE("/questions/:id", s.deleteQuestion)
		authed.POST("/questions/:id/like", s.likeQuestion)
		authed.DELETE("/questions/:id/like", s.unlikeQuestion)
		authed.POST("/questions/:id/answers", s.postAnswer)
		authed.DELETE("/answers/:id", s.deleteAnswer)

		authed.GET("/messages", s.listMessages)
		authed.POST("/messages", s.sendMessage)
		authed.POST("/messages/:id/read", s.markMessageRead)
		authed.POST("/messages/:id/purge", s.markMessageForPurge)

		authed.GET("/notifications", s.listNotifications)
		authed.POST("/notifications/read", s.markNotificationsRead)
	}
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.limiter.Run(ctx, 10*time.Minute)

	errChan := make(chan error, 1)
	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("Shutting down HTTP server")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
