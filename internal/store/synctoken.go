package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SyncToken returns the stored cursor for (resource, objectClass), or ""
// when no pass has completed yet.
func (s *Store) SyncToken(ctx context.Context, resource, objectClass string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `
		SELECT token FROM sync_tokens WHERE resource = ? AND object_class = ?
	`, resource, objectClass).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sync token %s/%s: %w", resource, objectClass, err)
	}
	return token, nil
}

// SetSyncToken stores the cursor for (resource, objectClass). Called only
// after a fully successful reconciliation pass.
func (s *Store) SetSyncToken(ctx context.Context, resource, objectClass, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_tokens (resource, object_class, token) VALUES (?, ?, ?)
		ON CONFLICT(resource, object_class) DO UPDATE SET token = excluded.token
	`, resource, objectClass, token)
	if err != nil {
		return fmt.Errorf("set sync token %s/%s: %w", resource, objectClass, err)
	}
	return nil
}
