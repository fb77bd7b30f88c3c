package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/mreiling/idprov/internal/subject"
)

// Save writes a subject and returns the stored copy with its new version.
//
// A subject with Version 0 is inserted; any other version must match the
// stored row exactly or Save fails with ErrConcurrentModification. Attrs
// and resource links are rewritten wholesale inside the same transaction.
func (s *Store) Save(ctx context.Context, sub *subject.Subject) (*subject.Subject, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("save subject: %w", err)
	}
	defer tx.Rollback()

	var newVersion int64
	if sub.Version == 0 {
		newVersion = 1
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO subjects (key, kind, version) VALUES (?, ?, 1)
		`, sub.Key, string(sub.Kind)); err != nil {
			return nil, fmt.Errorf("insert subject %s: %w", sub.Key, err)
		}
	} else {
		newVersion = sub.Version + 1
		res, err := tx.ExecContext(ctx, `
			UPDATE subjects SET kind = ?, version = ? WHERE key = ? AND version = ?
		`, string(sub.Kind), newVersion, sub.Key, sub.Version)
		if err != nil {
			return nil, fmt.Errorf("update subject %s: %w", sub.Key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("update subject %s: %w", sub.Key, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("save subject %s at version %d: %w", sub.Key, sub.Version, ErrConcurrentModification)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM subject_attrs WHERE subject_key = ?`, sub.Key); err != nil {
		return nil, fmt.Errorf("clear attrs for %s: %w", sub.Key, err)
	}
	names := make([]string, 0, len(sub.Attrs))
	for name := range sub.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for ord, value := range sub.Attrs[name] {
			if s.sealer != nil && name == SealedAttr {
				sealed, err := s.sealer.Encrypt(value)
				if err != nil {
					return nil, fmt.Errorf("seal attr %s.%s: %w", sub.Key, name, err)
				}
				value = sealed
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO subject_attrs (subject_key, name, ord, value) VALUES (?, ?, ?, ?)
			`, sub.Key, name, ord, value); err != nil {
				return nil, fmt.Errorf("insert attr %s.%s: %w", sub.Key, name, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM subject_resources WHERE subject_key = ?`, sub.Key); err != nil {
		return nil, fmt.Errorf("clear resources for %s: %w", sub.Key, err)
	}
	for _, resource := range sub.Resources {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO subject_resources (subject_key, resource) VALUES (?, ?)
		`, sub.Key, resource); err != nil {
			return nil, fmt.Errorf("insert resource link %s->%s: %w", sub.Key, resource, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save subject %s: %w", sub.Key, err)
	}

	out := sub.Clone()
	out.Version = newVersion
	return out, nil
}

// Get returns the subject with the given key, or nil when absent.
func (s *Store) Get(ctx context.Context, key string) (*subject.Subject, error) {
	row := s.db.QueryRowContext(ctx, `SELECT key, kind, version FROM subjects WHERE key = ?`, key)
	sub, err := scanSubject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject %s: %w", key, err)
	}
	if err := s.loadChildren(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// FindAll returns every subject of the given kind holding the attribute
// value, ordered by key for determinism. The correlation engine enforces
// its at-most-one contract on the result.
func (s *Store) FindAll(ctx context.Context, kind subject.Kind, attr, value string) ([]*subject.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT s.key, s.kind, s.version
		FROM subjects s
		JOIN subject_attrs a ON a.subject_key = s.key
		WHERE s.kind = ? AND a.name = ? AND a.value = ?
		ORDER BY s.key
	`, string(kind), attr, value)
	if err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", kind, attr, err)
	}
	defer rows.Close()

	var subs []*subject.Subject
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("find %s by %s: %w", kind, attr, err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", kind, attr, err)
	}
	for _, sub := range subs {
		if err := s.loadChildren(ctx, sub); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

// Delete removes a subject and, via foreign keys, its attributes and
// resource links. Deleting an absent subject is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subjects WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete subject %s: %w", key, err)
	}
	return nil
}

// Count returns the number of stored subjects of the given kind.
func (s *Store) Count(ctx context.Context, kind subject.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subjects WHERE kind = ?`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s subjects: %w", kind, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubject(row rowScanner) (*subject.Subject, error) {
	var key, kind string
	var version int64
	if err := row.Scan(&key, &kind, &version); err != nil {
		return nil, err
	}
	sub := subject.New(key, subject.Kind(kind))
	sub.Version = version
	return sub, nil
}

func (s *Store) loadChildren(ctx context.Context, sub *subject.Subject) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value FROM subject_attrs
		WHERE subject_key = ?
		ORDER BY name, ord
	`, sub.Key)
	if err != nil {
		return fmt.Errorf("load attrs for %s: %w", sub.Key, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("load attrs for %s: %w", sub.Key, err)
		}
		if s.sealer != nil && name == SealedAttr {
			plain, err := s.sealer.Decrypt(value)
			if err != nil {
				return fmt.Errorf("unseal attr %s.%s: %w", sub.Key, name, err)
			}
			value = plain
		}
		sub.Attrs[name] = append(sub.Attrs[name], value)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load attrs for %s: %w", sub.Key, err)
	}

	resRows, err := s.db.QueryContext(ctx, `
		SELECT resource FROM subject_resources
		WHERE subject_key = ?
		ORDER BY resource
	`, sub.Key)
	if err != nil {
		return fmt.Errorf("load resources for %s: %w", sub.Key, err)
	}
	defer resRows.Close()
	for resRows.Next() {
		var resource string
		if err := resRows.Scan(&resource); err != nil {
			return fmt.Errorf("load resources for %s: %w", sub.Key, err)
		}
		sub.Resources = append(sub.Resources, resource)
	}
	return resRows.Err()
}
