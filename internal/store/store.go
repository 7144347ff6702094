package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/mockinterview/internal/model"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a session was modified since it was read.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("already exists")
)

// Store is a SQLite-backed document store. Interviews and sessions are kept
// as JSON documents next to the columns used for lookups.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'candidate',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS interviews (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		verification_code TEXT,
		doc TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_interviews_verification
		ON interviews(verification_code) WHERE verification_code IS NOT NULL;

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		interview_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		doc TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (interview_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateInterview inserts a new interview, assigning an ID when empty.
func (s *Store) CreateInterview(ctx context.Context, iv *model.Interview) error {
	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(iv)
	if err != nil {
		return fmt.Errorf("encode interview: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interviews (id, user_id, status, verification_code, doc, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		iv.ID, iv.UserID, iv.Status, verificationCode(iv), string(doc), iv.CreatedAt, iv.CompletedAt,
	)
	if err != nil {
		return wrapConstraint(err, "create interview")
	}
	return nil
}

// FindInterview returns an interview by ID.
func (s *Store) FindInterview(ctx context.Context, id string) (*model.Interview, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM interviews WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeInterview(doc)
}

// SaveInterview replaces an existing interview document.
func (s *Store) SaveInterview(ctx context.Context, iv *model.Interview) error {
	doc, err := json.Marshal(iv)
	if err != nil {
		return fmt.Errorf("encode interview: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE interviews SET user_id = ?, status = ?, verification_code = ?, doc = ?, completed_at = ?
		 WHERE id = ?`,
		iv.UserID, iv.Status, verificationCode(iv), string(doc), iv.CompletedAt, iv.ID,
	)
	if err != nil {
		return wrapConstraint(err, "save interview")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindCertificate returns the interview holding the certificate with the
// given verification code.
func (s *Store) FindCertificate(ctx context.Context, code string) (*model.Interview, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM interviews WHERE verification_code = ?`, strings.ToUpper(code),
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeInterview(doc)
}

// ListInterviews returns interviews with the given status ("" for all), oldest first.
func (s *Store) ListInterviews(ctx context.Context, status model.InterviewStatus) ([]model.Interview, error) {
	query := `SELECT doc FROM interviews`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Interview
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		iv, err := decodeInterview(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *iv)
	}
	return out, rows.Err()
}

// CreateSession inserts a new session at version 1.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}
	sess.UpdatedAt = now
	sess.Version = 1
	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, interview_id, user_id, status, version, doc, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.InterviewID, sess.UserID, sess.Status, sess.Version, string(doc), sess.UpdatedAt,
	)
	if err != nil {
		return wrapConstraint(err, "create session")
	}
	return nil
}

// FindSession returns the session of a user for an interview.
func (s *Store) FindSession(ctx context.Context, interviewID, userID string) (*model.Session, error) {
	return s.querySession(ctx,
		`SELECT doc, version FROM sessions WHERE interview_id = ? AND user_id = ?`, interviewID, userID)
}

// FindSessionByID returns a session by ID.
func (s *Store) FindSessionByID(ctx context.Context, id string) (*model.Session, error) {
	return s.querySession(ctx, `SELECT doc, version FROM sessions WHERE id = ?`, id)
}

func (s *Store) querySession(ctx context.Context, query string, args ...any) (*model.Session, error) {
	var doc string
	var version int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSession(doc, version)
}

// SaveSession writes sess if its Version still matches the stored one and
// increments Version on success.
func (s *Store) SaveSession(ctx context.Context, sess *model.Session) error {
	next := *sess
	next.Version = sess.Version + 1
	next.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, version = ?, doc = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		next.Status, next.Version, string(doc), next.UpdatedAt, sess.ID, sess.Version,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sess.ID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	sess.Version, sess.UpdatedAt = next.Version, next.UpdatedAt
	return nil
}

// ListSessions returns sessions with the given status ("" for all), most recently updated first.
func (s *Store) ListSessions(ctx context.Context, status model.SessionStatus) ([]model.Session, error) {
	query := `SELECT doc, version FROM sessions`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC, id`
	return s.listSessions(ctx, query, args...)
}

// ListUnreconciled returns completed sessions whose interview is not marked completed.
func (s *Store) ListUnreconciled(ctx context.Context) ([]model.Session, error) {
	return s.listSessions(ctx,
		`SELECT s.doc, s.version FROM sessions s
		 JOIN interviews i ON i.id = s.interview_id
		 WHERE s.status = ? AND i.status != ?
		 ORDER BY s.updated_at`,
		model.SessionCompleted, model.InterviewCompleted,
	)
}

func (s *Store) listSessions(ctx context.Context, query string, args ...any) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Session
	for rows.Next() {
		var doc string
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		sess, err := decodeSession(doc, version)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func decodeInterview(doc string) (*model.Interview, error) {
	var iv model.Interview
	if err := json.Unmarshal([]byte(doc), &iv); err != nil {
		return nil, fmt.Errorf("decode interview: %w", err)
	}
	return &iv, nil
}

func decodeSession(doc string, version int64) (*model.Session, error) {
	var sess model.Session
	if err := json.Unmarshal([]byte(doc), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	// The column is authoritative.
	sess.Version = version
	return &sess, nil
}

func verificationCode(iv *model.Interview) any {
	if iv.Certificate == nil || iv.Certificate.VerificationCode == "" {
		return nil
	}
	return iv.Certificate.VerificationCode
}

func wrapConstraint(err error, op string) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "PRIMARY KEY") {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
