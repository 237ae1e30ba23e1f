package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"film_department_bot/internal/domain/journal"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_updates (
    bot_id      TEXT NOT NULL,
    update_id   BIGINT NOT NULL,
    chat_id     BIGINT NOT NULL,
    command     TEXT NOT NULL DEFAULT '',
    received_at TIMESTAMPTZ,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (bot_id, update_id)
);

CREATE TABLE IF NOT EXISTS poll_offsets (
    bot_id       TEXT PRIMARY KEY,
    last_update  BIGINT NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// PostgresJournalRepository keeps the update journal and the polling offset in
// Postgres, so both survive restarts and redeploys.
type PostgresJournalRepository struct {
	db    *sql.DB
	botID string
}

var _ journal.Store = (*PostgresJournalRepository)(nil)

// NewPostgresJournalRepository scopes journal rows and the stored offset to
// botID (the bot's username), letting several bots share one database.
func NewPostgresJournalRepository(db *sql.DB, botID string) *PostgresJournalRepository {
	return &PostgresJournalRepository{db: db, botID: botID}
}

// EnsureSchema creates the tables if they are missing.
func (r *PostgresJournalRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error creating journal schema: %w", err)
	}
	return nil
}

func (r *PostgresJournalRepository) Record(ctx context.Context, e journal.Entry) (bool, error) {
	query := `INSERT INTO processed_updates (bot_id, update_id, chat_id, command, received_at)
               VALUES ($1, $2, $3, $4, $5)
               ON CONFLICT (bot_id, update_id) DO NOTHING`

	var receivedAt sql.NullTime
	if !e.ReceivedAt.IsZero() {
		receivedAt = sql.NullTime{Time: e.ReceivedAt, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, query, r.botID, e.UpdateID, e.ChatID, e.Command, receivedAt)
	if err != nil {
		return false, fmt.Errorf("error recording update %d: %w", e.UpdateID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error checking rows affected for update %d: %w", e.UpdateID, err)
	}
	return rows == 0, nil
}

func (r *PostgresJournalRepository) LoadOffset(ctx context.Context) (int64, error) {
	query := `SELECT last_update FROM poll_offsets WHERE bot_id = $1`
	var last int64
	err := r.db.QueryRowContext(ctx, query, r.botID).Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("error loading poll offset: %w", err)
	}
	return last, nil
}

func (r *PostgresJournalRepository) SaveOffset(ctx context.Context, lastUpdateID int64) error {
	query := `INSERT INTO poll_offsets (bot_id, last_update, updated_at)
               VALUES ($1, $2, NOW())
               ON CONFLICT (bot_id) DO UPDATE
               SET last_update = EXCLUDED.last_update, updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, r.botID, lastUpdateID); err != nil {
		return fmt.Errorf("error saving poll offset: %w", err)
	}
	return nil
}

// Prune deletes this bot's journal rows more than keep update IDs behind its
// newest one and returns how many were removed.
func (r *PostgresJournalRepository) Prune(ctx context.Context, keep int64) (int64, error) {
	query := `DELETE FROM processed_updates
               WHERE bot_id = $1
                 AND update_id < (SELECT COALESCE(MAX(update_id), 0) FROM processed_updates WHERE bot_id = $1) - $2`
	res, err := r.db.ExecContext(ctx, query, r.botID, keep)
	if err != nil {
		return 0, fmt.Errorf("error pruning journal: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *PostgresJournalRepository) Close() error {
	return r.db.Close()
}
