package database

import (
	"database/sql"
)

// SubledgerService handles coin balance and change log operations
type SubledgerService struct {
	db *sql.DB
}

func NewSubledgerService(db *sql.DB) *SubledgerService {
	return &SubledgerService{
		db: db,
	}
}

func (s *SubledgerService) InitSchema() error {
	schema := `
	-- Coin Balances Table (Current State - Hot Data)
	CREATE TABLE IF NOT EXISTS coin_balances (
		account_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		last_transaction_id TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Coin Transactions Table (Audit Trail - Cold Data)
	CREATE TABLE IF NOT EXISTS coin_transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount INTEGER NOT NULL,
		balance_before INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_coin_transactions_account ON coin_transactions(account_id);
	CREATE INDEX IF NOT EXISTS idx_coin_transactions_created_at ON coin_transactions(created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_coin_transactions_reference
		ON coin_transactions(reference) WHERE reference != '';

	-- Change log read by the listener and counted by relays
	CREATE TABLE IF NOT EXISTS change_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		relation TEXT NOT NULL,
		event_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		account_id TEXT NOT NULL DEFAULT '',
		parent_id TEXT NOT NULL DEFAULT '',
		before_exists BOOLEAN NOT NULL DEFAULT 0,
		before_unread BOOLEAN NOT NULL DEFAULT 0,
		after_exists BOOLEAN NOT NULL DEFAULT 0,
		after_unread BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_change_events_created_at ON change_events(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}
