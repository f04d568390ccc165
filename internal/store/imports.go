package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetImportedFileHash returns the hash recorded for an imported file, or
// "" if the file was never imported.
func (s *Store) GetImportedFileHash(ctx context.Context, name string) (string, error) {
	var hash string
	err := s.conn().queryRow(ctx, `SELECT hash FROM imported_files WHERE name = ?`, name).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the hash of an imported file.
func (s *Store) SetImportedFileHash(ctx context.Context, name, hash string) error {
	_, err := s.conn().exec(ctx,
		`INSERT INTO imported_files (name, hash, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET hash = excluded.hash, imported_at = excluded.imported_at`,
		name, hash, time.Now().UTC(),
	)
	return err
}
