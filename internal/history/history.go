// Package history persists finished transfers to a local SQLite
// journal so past uploads survive process restarts.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/mhollis/skiff/internal/models"
)

// Journal is a SQLite-backed transfer log.
type Journal struct {
	db     *sql.DB
	limit  int
	logger zerolog.Logger
}

// Open creates or opens the journal at dbPath, creating parent
// directories as needed. limit caps the number of retained rows.
func Open(dbPath string, limit int, logger zerolog.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	j := &Journal{
		db:     db,
		limit:  limit,
		logger: logger.With().Str("component", "history").Logger(),
	}

	if err := j.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS transfers (
        id TEXT PRIMARY KEY,
        source_name TEXT NOT NULL,
        target_name TEXT NOT NULL,
        target_path TEXT NOT NULL,
        destination_path TEXT NOT NULL,
        size INTEGER NOT NULL,
        status TEXT NOT NULL,
        error TEXT,
        enqueued_at TIMESTAMP NOT NULL,
        finished_at TIMESTAMP NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_transfers_finished ON transfers(finished_at);
    `

	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Record writes one finished transfer and prunes the journal to its
// retention limit.
func (j *Journal) Record(item models.TransferItem) error {
	var errText sql.NullString
	if item.Error != "" {
		errText = sql.NullString{String: item.Error, Valid: true}
	}

	_, err := j.db.Exec(`
        INSERT OR REPLACE INTO transfers
            (id, source_name, target_name, target_path, destination_path,
             size, status, error, enqueued_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, item.ID, item.SourceName, item.TargetName, item.TargetPath,
		item.DestinationPath, item.Size, string(item.Status), errText,
		item.EnqueuedAt, item.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}

	if j.limit > 0 {
		if err := j.prune(); err != nil {
			j.logger.Warn().Err(err).Msg("failed to prune history")
		}
	}
	return nil
}

func (j *Journal) prune() error {
	_, err := j.db.Exec(`
        DELETE FROM transfers
        WHERE id NOT IN (
            SELECT id FROM transfers ORDER BY finished_at DESC LIMIT ?
        )
    `, j.limit)
	return err
}

// Recent returns up to n transfers, most recently finished first.
func (j *Journal) Recent(n int) ([]models.TransferItem, error) {
	rows, err := j.db.Query(`
        SELECT id, source_name, target_name, target_path, destination_path,
               size, status, error, enqueued_at, finished_at
        FROM transfers
        ORDER BY finished_at DESC
        LIMIT ?
    `, n)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var items []models.TransferItem
	for rows.Next() {
		var item models.TransferItem
		var status string
		var errText sql.NullString
		var enqueued, finished time.Time

		if err := rows.Scan(&item.ID, &item.SourceName, &item.TargetName,
			&item.TargetPath, &item.DestinationPath, &item.Size,
			&status, &errText, &enqueued, &finished); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}

		item.Status = models.TransferStatus(status)
		if errText.Valid {
			item.Error = errText.String
		}
		item.EnqueuedAt = enqueued
		item.FinishedAt = finished
		if item.Status == models.StatusComplete {
			item.Loaded = item.Size
			item.Progress = 100
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
