// Package store persists vault records, scheduled unlock windows and
// emergency access requests in a local SQLite database.
//
// The store is the collaborator boundary of the flow controllers: every row
// is scoped to an owner id, and all errors are surfaced as wrapped sentinel
// errors rather than driver errors. Timestamps are persisted as RFC 3339
// UTC strings so the absolute values survive the process being closed and
// reopened.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Sentinel errors.
var (
	// ErrNotFound indicates the referenced row does not exist or is not
	// visible to the requesting owner. Flows treat this as fatal and fall
	// back to the vault list.
	ErrNotFound = errors.New("store: record not found")

	// ErrActiveRequestExists indicates the vault already has an emergency
	// request that is neither cancelled nor completed.
	ErrActiveRequestExists = errors.New("store: an active emergency request already exists for this vault")

	// ErrNoSchema indicates the database file exists but the expected
	// tables are missing.
	ErrNoSchema = errors.New("store: database schema missing, delete the database file to recreate it")

	// ErrInvalidDay indicates a day-of-week outside 0-6.
	ErrInvalidDay = errors.New("store: day of week must be between 0 (Sunday) and 6 (Saturday)")

	// ErrInvalidTime indicates a time string not in HH:MM:SS form.
	ErrInvalidTime = errors.New("store: time must be in HH:MM:SS form")

	// ErrEmptyName indicates a vault with no display name.
	ErrEmptyName = errors.New("store: vault name must not be empty")
)

var timeOfDayRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]:[0-5][0-9]$`)

// Store wraps the SQLite database. A Store is safe for use from a single
// flow at a time; the connection pool is limited to one connection, matching
// single-user CLI access.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	// Single-connection mode avoids "database is locked" errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vaults (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			ciphertext TEXT NOT NULL,
			iv TEXT NOT NULL,
			salt TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_unlocks (
			id TEXT PRIMARY KEY,
			vault_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			day_of_week INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			enabled INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS emergency_requests (
			id TEXT PRIMARY KEY,
			vault_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			requested_at TEXT NOT NULL,
			unlock_at TEXT NOT NULL,
			completed_at TEXT,
			cancelled INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: failed to create tables: %w", err)
		}
	}
	return nil
}

// wrapErr maps driver errors onto the store's sentinel taxonomy.
func wrapErr(op string, err error) error {
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w (%s)", ErrNoSchema, op)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: corrupt timestamp %q: %w", s, err)
	}
	return t.Local(), nil
}

// InsertVault persists a new vault record. The id and creation timestamp are
// assigned here when unset.
func (s *Store) InsertVault(ctx context.Context, v *Vault) error {
	if strings.TrimSpace(v.Name) == "" {
		return ErrEmptyName
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vaults (id, owner_id, name, ciphertext, iv, salt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.OwnerID, v.Name, v.Secret.Ciphertext, v.Secret.IV, v.Secret.Salt,
		encodeTime(v.CreatedAt))
	if err != nil {
		return wrapErr("insert vault", err)
	}
	return nil
}

func scanVault(row interface{ Scan(...any) error }) (*Vault, error) {
	var v Vault
	var createdAt string
	err := row.Scan(&v.ID, &v.OwnerID, &v.Name,
		&v.Secret.Ciphertext, &v.Secret.IV, &v.Secret.Salt, &createdAt)
	if err != nil {
		return nil, err
	}
	if v.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVault fetches one vault by id, scoped to its owner.
func (s *Store) GetVault(ctx context.Context, ownerID, id string) (*Vault, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, ciphertext, iv, salt, created_at
		FROM vaults WHERE id = ? AND owner_id = ?`, id, ownerID)
	v, err := scanVault(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapErr("get vault", err)
	}
	return v, nil
}

// GetVaultByName fetches one vault by display name, scoped to its owner.
// When several vaults share a name the oldest wins.
func (s *Store) GetVaultByName(ctx context.Context, ownerID, name string) (*Vault, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, ciphertext, iv, salt, created_at
		FROM vaults WHERE name = ? AND owner_id = ?
		ORDER BY created_at LIMIT 1`, name, ownerID)
	v, err := scanVault(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapErr("get vault by name", err)
	}
	return v, nil
}

// ListVaults returns all vaults of an owner, oldest first.
func (s *Store) ListVaults(ctx context.Context, ownerID string) ([]*Vault, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, ciphertext, iv, salt, created_at
		FROM vaults WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, wrapErr("list vaults", err)
	}
	defer rows.Close()

	var out []*Vault
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, wrapErr("list vaults", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list vaults", err)
	}
	return out, nil
}

// DeleteVault removes a vault and its schedules and emergency requests.
func (s *Store) DeleteVault(ctx context.Context, ownerID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("delete vault", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM vaults WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return wrapErr("delete vault", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("delete vault", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM scheduled_unlocks WHERE vault_id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return wrapErr("delete vault schedules", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM emergency_requests WHERE vault_id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return wrapErr("delete vault emergency requests", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("delete vault", err)
	}
	return nil
}

// InsertSchedule persists a new scheduled unlock window. Day and time
// formats are validated; the start/end ordering is not. A window whose end
// precedes its start is stored as-is and simply never matches.
func (s *Store) InsertSchedule(ctx context.Context, sched *ScheduledUnlock) error {
	if sched.DayOfWeek < time.Sunday || sched.DayOfWeek > time.Saturday {
		return ErrInvalidDay
	}
	if !timeOfDayRe.MatchString(sched.StartTime) || !timeOfDayRe.MatchString(sched.EndTime) {
		return ErrInvalidTime
	}
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_unlocks (id, vault_id, owner_id, day_of_week, start_time, end_time, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.VaultID, sched.OwnerID, int(sched.DayOfWeek),
		sched.StartTime, sched.EndTime, sched.Enabled, encodeTime(sched.CreatedAt))
	if err != nil {
		return wrapErr("insert schedule", err)
	}
	return nil
}

// ListSchedules returns all windows for a vault ordered by day of week.
func (s *Store) ListSchedules(ctx context.Context, ownerID, vaultID string) ([]*ScheduledUnlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vault_id, owner_id, day_of_week, start_time, end_time, enabled, created_at
		FROM scheduled_unlocks WHERE vault_id = ? AND owner_id = ?
		ORDER BY day_of_week, start_time`, vaultID, ownerID)
	if err != nil {
		return nil, wrapErr("list schedules", err)
	}
	defer rows.Close()

	var out []*ScheduledUnlock
	for rows.Next() {
		var sc ScheduledUnlock
		var day int
		var createdAt string
		if err := rows.Scan(&sc.ID, &sc.VaultID, &sc.OwnerID, &day,
			&sc.StartTime, &sc.EndTime, &sc.Enabled, &createdAt); err != nil {
			return nil, wrapErr("list schedules", err)
		}
		sc.DayOfWeek = time.Weekday(day)
		if sc.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &sc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list schedules", err)
	}
	return out, nil
}

// SetScheduleEnabled toggles one window.
func (s *Store) SetScheduleEnabled(ctx context.Context, ownerID, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_unlocks SET enabled = ? WHERE id = ? AND owner_id = ?`,
		enabled, id, ownerID)
	if err != nil {
		return wrapErr("update schedule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("update schedule", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSchedule removes one window.
func (s *Store) DeleteSchedule(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_unlocks WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return wrapErr("delete schedule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("delete schedule", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertEmergencyRequest persists a new request after verifying no active
// request exists for the vault. The at-most-one-active invariant is enforced
// by this query-then-insert, not by a database constraint.
func (s *Store) InsertEmergencyRequest(ctx context.Context, r *EmergencyRequest) error {
	if existing, err := s.LatestActiveRequest(ctx, r.OwnerID, r.VaultID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	} else if existing != nil {
		return ErrActiveRequestExists
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	var completedAt sql.NullString
	if r.CompletedAt != nil {
		completedAt = sql.NullString{String: encodeTime(*r.CompletedAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emergency_requests (id, vault_id, owner_id, requested_at, unlock_at, completed_at, cancelled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.VaultID, r.OwnerID, encodeTime(r.RequestedAt), encodeTime(r.UnlockAt),
		completedAt, r.Cancelled, encodeTime(r.CreatedAt))
	if err != nil {
		return wrapErr("insert emergency request", err)
	}
	return nil
}

// LatestActiveRequest returns the most recent request for the vault that is
// neither cancelled nor completed, or ErrNotFound when none exists.
func (s *Store) LatestActiveRequest(ctx context.Context, ownerID, vaultID string) (*EmergencyRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, vault_id, owner_id, requested_at, unlock_at, completed_at, cancelled, created_at
		FROM emergency_requests
		WHERE vault_id = ? AND owner_id = ? AND cancelled = 0 AND completed_at IS NULL
		ORDER BY requested_at DESC LIMIT 1`, vaultID, ownerID)

	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapErr("latest active request", err)
	}
	return r, nil
}

func scanRequest(row interface{ Scan(...any) error }) (*EmergencyRequest, error) {
	var r EmergencyRequest
	var requestedAt, unlockAt, createdAt string
	var completedAt sql.NullString
	err := row.Scan(&r.ID, &r.VaultID, &r.OwnerID,
		&requestedAt, &unlockAt, &completedAt, &r.Cancelled, &createdAt)
	if err != nil {
		return nil, err
	}
	if r.RequestedAt, err = decodeTime(requestedAt); err != nil {
		return nil, err
	}
	if r.UnlockAt, err = decodeTime(unlockAt); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := decodeTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		r.CompletedAt = &t
	}
	return &r, nil
}

// CancelRequest marks a request cancelled.
func (s *Store) CancelRequest(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE emergency_requests SET cancelled = 1 WHERE id = ? AND owner_id = ?`,
		id, ownerID)
	if err != nil {
		return wrapErr("cancel emergency request", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("cancel emergency request", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteRequest records that a decryption consumed the request.
func (s *Store) CompleteRequest(ctx context.Context, ownerID, id string, completedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE emergency_requests SET completed_at = ? WHERE id = ? AND owner_id = ?`,
		encodeTime(completedAt), id, ownerID)
	if err != nil {
		return wrapErr("complete emergency request", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("complete emergency request", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
