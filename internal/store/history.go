package store

import (
	"context"
	"fmt"
	"time"

	"github.com/datallboy/gotok/internal/domain"
	"github.com/segmentio/ksuid"
)

const counterTotalDownloads = "total_downloads"

// RecordCompletion stores a finished download and bumps the total counter in
// one transaction. An empty entry ID is filled with a new KSUID.
func (s *PersistentStore) RecordCompletion(ctx context.Context, e domain.HistoryEntry) (domain.HistoryEntry, error) {
	if e.ID == "" {
		e.ID = ksuid.New().String()
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now()
	}

	var row historyDBO
	row.FromDomain(e)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return e, fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO history (id, download_id, url, title, file_path, quality, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.DownloadID, row.URL, row.Title, row.FilePath, row.Quality, row.CompletedAt,
	)
	if err != nil {
		return e, fmt.Errorf("insert history: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO counters (name, value) VALUES (?, 1)
		 ON CONFLICT(name) DO UPDATE SET value = value + 1`,
		counterTotalDownloads,
	)
	if err != nil {
		return e, fmt.Errorf("bump download counter: %w", err)
	}

	return e, tx.Commit()
}

// ListHistory returns the newest entries first. limit <= 0 means all.
func (s *PersistentStore) ListHistory(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	query := `SELECT id, download_id, url, title, file_path, quality, completed_at
	          FROM history ORDER BY completed_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var row historyDBO
		if err := rows.Scan(&row.ID, &row.DownloadID, &row.URL, &row.Title, &row.FilePath, &row.Quality, &row.CompletedAt); err != nil {
			return nil, err
		}
		entries = append(entries, row.ToDomain())
	}
	return entries, rows.Err()
}

func (s *PersistentStore) TotalDownloads(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT value FROM counters WHERE name = ?", counterTotalDownloads).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("read download counter: %w", err)
	}
	return n, nil
}

// ResetStats zeroes the counter. History rows are kept.
func (s *PersistentStore) ResetStats(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "UPDATE counters SET value = 0 WHERE name = ?", counterTotalDownloads)
	return err
}
