// Package leadstore mirrors the lead directory to a local SQLite file so the
// agent can match calls right after a restart, before the backend answers.
package leadstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"callsync_agent/internal/crm"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store persists the lead snapshot. Matching priority depends on list order,
// so rows carry their position and load back in it.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the snapshot database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate snapshot db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceAll swaps the snapshot for the given list in one transaction.
func (s *Store) ReplaceAll(ctx context.Context, leads []crm.Lead) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM leads`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO leads (id, name, phone, mobile, alternate_phone, owner_kind, owner_id, owner_name, status, stage, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, lead := range leads {
		if _, err := stmt.ExecContext(ctx,
			lead.ID, lead.Name, lead.Phone, lead.Mobile, lead.AlternatePhone,
			int(lead.Owner.Kind), lead.Owner.ID, lead.Owner.Name,
			lead.Status, lead.Stage, i,
		); err != nil {
			return fmt.Errorf("insert lead %s: %w", lead.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot replace: %w", err)
	}
	return nil
}

// LoadAll returns the snapshot in its original list order.
func (s *Store) LoadAll(ctx context.Context) ([]crm.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, mobile, alternate_phone, owner_kind, owner_id, owner_name, status, stage
		FROM leads ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	var leads []crm.Lead
	for rows.Next() {
		var lead crm.Lead
		var ownerKind int
		if err := rows.Scan(
			&lead.ID, &lead.Name, &lead.Phone, &lead.Mobile, &lead.AlternatePhone,
			&ownerKind, &lead.Owner.ID, &lead.Owner.Name,
			&lead.Status, &lead.Stage,
		); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		lead.Owner.Kind = crm.OwnerKind(ownerKind)
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	return leads, nil
}
