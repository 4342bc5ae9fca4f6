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

package config

import (
	"fmt"

	"qna-coin-ledger-go/internal/models"

	"github.com/caarlos0/env/v11"
)

// Load reads the configuration from the environment, applying the defaults declared on
// the config structs.
func Load() (*models.Config, error) {
	var cfg models.Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *models.Config) error {
	if cfg.Database.Path == "" {
		return fmt.Errorf("DATABASE_PATH cannot be empty")
	}
	if cfg.Listener.PollingInterval <= 0 {
		return fmt.Errorf("invalid LISTENER_POLLING_INTERVAL: %s", cfg.Listener.PollingInterval)
	}
	if cfg.Limits.LoginMaxAttempts <= 0 || cfg.Limits.SignupMaxAttempts <= 0 {
		return fmt.Errorf("rate limit attempts must be positive")
	}
	if cfg.Limits.LoginWindow <= 0 || cfg.Limits.SignupWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}
	if cfg.Ledger.InitialCoins < 0 {
		return fmt.Errorf("INITIAL_COINS cannot be negative: %d", cfg.Ledger.InitialCoins)
	}
	return nil
}
