package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store on top of a device_sessions table.
// The pgx pool is owned by the caller; this store must not close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	table  string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "warden").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("session: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed device-session store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "warden",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	st.table = pgx.Identifier{st.schema, "device_sessions"}.Sanitize()
	return st, nil
}

// Upsert activates the (user_id, device_id) row or inserts it active.
// The unique constraint on (user_id, device_id) makes this the serialization
// point for concurrent admission checks.
func (s *PostgresStore) Upsert(ctx context.Context, now time.Time, userID string, dev Device) (DeviceSession, error) {
	id := ulid.Make().String()

	var row DeviceSession
	err := s.pool.QueryRow(ctx, `
		INSERT INTO `+s.table+` (
			id, user_id, device_id, device_name, user_agent,
			last_activity, is_active, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, TRUE, $6
		)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			is_active = TRUE,
			last_activity = EXCLUDED.last_activity,
			device_name = EXCLUDED.device_name,
			user_agent = EXCLUDED.user_agent
		RETURNING id, user_id, device_id, device_name, user_agent,
		          last_activity, is_active, created_at
	`, id, userID, dev.DeviceID, dev.DeviceName, dev.UserAgent, now).Scan(
		&row.ID,
		&row.UserID,
		&row.DeviceID,
		&row.DeviceName,
		&row.UserAgent,
		&row.LastActivity,
		&row.IsActive,
		&row.CreatedAt,
	)
	if err != nil {
		return DeviceSession{}, err
	}

	return row, nil
}

// ListActive returns all active rows for the user, oldest first.
func (s *PostgresStore) ListActive(ctx context.Context, userID string) ([]DeviceSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, device_id, device_name, user_agent,
		       last_activity, is_active, created_at
		FROM `+s.table+`
		WHERE user_id = $1 AND is_active
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeviceSession
	for rows.Next() {
		var row DeviceSession
		if err := rows.Scan(
			&row.ID,
			&row.UserID,
			&row.DeviceID,
			&row.DeviceName,
			&row.UserAgent,
			&row.LastActivity,
			&row.IsActive,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetActiveByDevice loads the active row for an exact (user_id, device_id) pair.
func (s *PostgresStore) GetActiveByDevice(ctx context.Context, userID, deviceID string) (DeviceSession, error) {
	var row DeviceSession
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, device_id, device_name, user_agent,
		       last_activity, is_active, created_at
		FROM `+s.table+`
		WHERE user_id = $1 AND device_id = $2 AND is_active
	`, userID, deviceID).Scan(
		&row.ID,
		&row.UserID,
		&row.DeviceID,
		&row.DeviceName,
		&row.UserAgent,
		&row.LastActivity,
		&row.IsActive,
		&row.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeviceSession{}, ErrNotFound
	}
	if err != nil {
		return DeviceSession{}, err
	}

	return row, nil
}

// Deactivate marks a session inactive by id, scoped by user_id.
func (s *PostgresStore) Deactivate(ctx context.Context, _ time.Time, userID, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET is_active = FALSE
		WHERE id = $1 AND user_id = $2
	`, sessionID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateDevice marks the (user_id, device_id) row inactive (idempotent).
func (s *PostgresStore) DeactivateDevice(ctx context.Context, _ time.Time, userID, deviceID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET is_active = FALSE
		WHERE user_id = $1 AND device_id = $2
	`, userID, deviceID)
	return err
}

// Touch refreshes last_activity for a session.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET last_activity = $2
		WHERE id = $1
	`, sessionID, now)
	return err
}
