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

package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Listener ListenerConfig
	Server   ServerConfig
	Limits   LimitsConfig
	Purge    PurgeConfig
	Ledger   LedgerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path             string        `env:"DATABASE_PATH" envDefault:"qna.db"`
	MaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" envDefault:"1"`
	MaxIdleConns     int           `env:"DB_MAX_IDLE_CONNS" envDefault:"1"`
	ConnMaxLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime  time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"30s"`
	PingTimeout      time.Duration `env:"DB_PING_TIMEOUT" envDefault:"5s"`
	CreateDummyUsers bool          `env:"CREATE_DUMMY_USERS" envDefault:"false"`
}

// ListenerConfig holds change listener settings
type ListenerConfig struct {
	PollingInterval time.Duration `env:"LISTENER_POLLING_INTERVAL" envDefault:"1s"`
	LookbackWindow  time.Duration `env:"LISTENER_LOOKBACK_WINDOW" envDefault:"10m"`
	CleanupInterval time.Duration `env:"LISTENER_CLEANUP_INTERVAL" envDefault:"1m"`
	BatchSize       int           `env:"LISTENER_BATCH_SIZE" envDefault:"500"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr               string        `env:"SERVER_ADDR" envDefault:":8080"`
	CorsOrigin         string        `env:"CORS_ORIGIN" envDefault:"*"`
	WriteRPS           float64       `env:"SERVER_WRITE_RPS" envDefault:"2"`
	WriteBurst         int           `env:"SERVER_WRITE_BURST" envDefault:"5"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"24h"`
	ShutdownTimeout    time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	WSWriteTimeout     time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
}

// LimitsConfig holds the fixed-window limits for sensitive actions
type LimitsConfig struct {
	LoginMaxAttempts  int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginWindow       time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
	SignupMaxAttempts int           `env:"SIGNUP_MAX_ATTEMPTS" envDefault:"3"`
	SignupWindow      time.Duration `env:"SIGNUP_WINDOW" envDefault:"60m"`
	CleanupInterval   time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"10m"`
}

// PurgeConfig holds message purge settings. An empty ScopeAccountId sweeps every inbox.
type PurgeConfig struct {
	ScopeAccountId string `env:"PURGE_SCOPE_ACCOUNT"`
	Timezone       string `env:"PURGE_TIMEZONE" envDefault:"Local"`
}

// LedgerConfig holds engagement ledger settings
type LedgerConfig struct {
	RulesFile    string        `env:"RULES_FILE" envDefault:"rules.yaml"`
	InitialCoins int64         `env:"INITIAL_COINS" envDefault:"20"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"10s"`
}
