// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package linkstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS principal_links (
	chat_user_id             TEXT PRIMARY KEY,
	status                   TEXT NOT NULL,
	external_username        TEXT,
	external_id              INTEGER,
	proof_token              TEXT,
	is_external_group_member INTEGER NOT NULL DEFAULT 0,
	is_admin_override        INTEGER NOT NULL DEFAULT 0,
	verified_at              INTEGER,
	updated_at               INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS principal_links_group_member
	ON principal_links (is_external_group_member);
`

const linkColumns = `chat_user_id, status, external_username, external_id, proof_token,
	is_external_group_member, is_admin_override, verified_at, updated_at`

// Store reads and writes principal links. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Config holds the parameters for Open.
type Config struct {
	Path     string
	PoolSize int

	// Clock stamps UpdatedAt. Required.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Open opens the database and applies the schema. An error here is
// fatal for the bot.
func Open(ctx context.Context, config Config) (*Store, error) {
	if config.Clock == nil {
		return nil, fmt.Errorf("linkstore: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("linkstore: Logger is required")
	}

	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Schema:   schema,
		Logger:   config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("linkstore: %w", err)
	}
	return &Store{pool: pool, clock: config.Clock, logger: config.Logger}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Get returns userID's link or ErrNotFound.
func (s *Store) Get(ctx context.Context, userID string) (*Link, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("linkstore: get: %w", err)
	}
	defer s.pool.Put(conn)

	var found *Link
	err = sqlitex.Execute(conn,
		`SELECT `+linkColumns+` FROM principal_links WHERE chat_user_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{userID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = scanLink(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("linkstore: get %s: %w", userID, err)
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// Put validates link, stamps UpdatedAt, and upserts it.
func (s *Store) Put(ctx context.Context, link *Link) (err error) {
	if err := link.Validate(); err != nil {
		return err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("linkstore: put: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("linkstore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	link.UpdatedAt = s.clock.Now()
	err = sqlitex.Execute(conn, `
		INSERT INTO principal_links (`+linkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_user_id) DO UPDATE SET
			status = excluded.status,
			external_username = excluded.external_username,
			external_id = excluded.external_id,
			proof_token = excluded.proof_token,
			is_external_group_member = excluded.is_external_group_member,
			is_admin_override = excluded.is_admin_override,
			verified_at = excluded.verified_at,
			updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				link.ChatUserID,
				string(link.Status),
				nullableText(link.ExternalUsername),
				nullableInteger(link.ExternalID),
				nullableText(link.ProofToken),
				link.IsExternalGroupMember,
				link.IsAdminOverride,
				nullableTime(link.VerifiedAt),
				link.UpdatedAt.UnixNano(),
			},
		})
	if err != nil {
		return fmt.Errorf("linkstore: put %s: %w", link.ChatUserID, err)
	}
	return nil
}

// Delete removes userID's link and reports whether one existed.
func (s *Store) Delete(ctx context.Context, userID string) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("linkstore: delete: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM principal_links WHERE chat_user_id = ?`,
		&sqlitex.ExecOptions{Args: []any{userID}}); err != nil {
		return false, fmt.Errorf("linkstore: delete %s: %w", userID, err)
	}
	return conn.Changes() > 0, nil
}

// ListGroupMembers returns every link whose last known group
// membership is true, oldest update first.
func (s *Store) ListGroupMembers(ctx context.Context) ([]Link, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("linkstore: list group members: %w", err)
	}
	defer s.pool.Put(conn)

	var links []Link
	err = sqlitex.Execute(conn,
		`SELECT `+linkColumns+` FROM principal_links
		WHERE is_external_group_member = 1
		ORDER BY updated_at, chat_user_id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				links = append(links, *scanLink(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("linkstore: list group members: %w", err)
	}
	return links, nil
}

// MarkRevoked demotes userID after a failed membership check of
// externalID: the record is kept with is_external_group_member cleared
// and status unverified. The update applies only while the link still
// names externalID as a group member; a link rewritten since it was
// checked returns ErrLinkChanged and is left alone.
func (s *Store) MarkRevoked(ctx context.Context, userID string, externalID int64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("linkstore: mark revoked: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		UPDATE principal_links
		SET is_external_group_member = 0, status = ?, proof_token = NULL, updated_at = ?
		WHERE chat_user_id = ? AND external_id = ? AND is_external_group_member = 1`,
		&sqlitex.ExecOptions{
			Args: []any{string(Unverified), s.clock.Now().UnixNano(), userID, externalID},
		})
	if err != nil {
		return fmt.Errorf("linkstore: mark revoked %s: %w", userID, err)
	}
	if conn.Changes() == 0 {
		return ErrLinkChanged
	}
	return nil
}

// Counts tallies links by status, admin override, and membership.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	counts := Counts{ByStatus: make(map[Status]int)}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return counts, fmt.Errorf("linkstore: counts: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		SELECT status, is_admin_override, is_external_group_member, COUNT(*)
		FROM principal_links
		GROUP BY status, is_admin_override, is_external_group_member`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count := stmt.ColumnInt(3)
				counts.ByStatus[Status(stmt.ColumnText(0))] += count
				if stmt.ColumnBool(1) {
					counts.AdminOverrides += count
				}
				if stmt.ColumnBool(2) {
					counts.GroupMembers += count
				}
				counts.Total += count
				return nil
			},
		})
	if err != nil {
		return counts, fmt.Errorf("linkstore: counts: %w", err)
	}
	return counts, nil
}

// scanLink reads a row selected with linkColumns. NULL columns read
// as zero values.
func scanLink(stmt *sqlite.Stmt) *Link {
	link := &Link{
		ChatUserID:            stmt.ColumnText(0),
		Status:                Status(stmt.ColumnText(1)),
		ExternalUsername:      stmt.ColumnText(2),
		ExternalID:            stmt.ColumnInt64(3),
		ProofToken:            stmt.ColumnText(4),
		IsExternalGroupMember: stmt.ColumnBool(5),
		IsAdminOverride:       stmt.ColumnBool(6),
		UpdatedAt:             time.Unix(0, stmt.ColumnInt64(8)).UTC(),
	}
	if stmt.ColumnType(7) != sqlite.TypeNull {
		link.VerifiedAt = time.Unix(0, stmt.ColumnInt64(7)).UTC()
	}
	return link
}

func nullableText(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInteger(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UnixNano()
}
