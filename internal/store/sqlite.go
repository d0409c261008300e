package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arisectf/arise-server/internal/domain"
	"github.com/arisectf/arise-server/internal/errs"
	"github.com/arisectf/arise-server/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // Serializes mutating transactions to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency. Write
	// transactions start immediate so read-check-mutate is exclusive.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		contact TEXT NOT NULL DEFAULT '',
		guild TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_score ON users(score DESC, username ASC);

	CREATE TABLE IF NOT EXISTS challenges (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		points INTEGER NOT NULL,
		description TEXT NOT NULL,
		flag_secret TEXT NOT NULL,
		hint_text TEXT NOT NULL DEFAULT '',
		hint_cost INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS solve_records (
		user_id INTEGER NOT NULL REFERENCES users(id),
		challenge_id INTEGER NOT NULL REFERENCES challenges(id),
		solved INTEGER NOT NULL DEFAULT 0,
		solved_at INTEGER,
		hint_unlocked INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, challenge_id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const userColumns = `id, username, email, contact, guild, password_hash, score, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var user domain.User
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.Contact, &user.Guild,
		&user.PasswordHash, &user.Score, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// CreateUser inserts a new user and returns its assigned ID.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO users (username, email, contact, guild, password_hash, score, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	res, err := s.db.ExecContext(ctx, query,
		user.Username, user.Email, user.Contact, user.Guild,
		user.PasswordHash, user.Score, now.Unix(), now.Unix(),
	)
	if err != nil {
		if shared.IsSQLiteUniqueError(err) {
			return 0, errs.ErrAlreadyExists
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// GetUserByIdentifier retrieves a user by username, email or contact number.
func (s *SQLiteStore) GetUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ? OR email = ? OR contact = ?`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, identifier, identifier, identifier))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// ListUsersByScore returns users ordered by score descending,
// tie-broken by username ascending.
func (s *SQLiteStore) ListUsersByScore(ctx context.Context, limit int) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY score DESC, username ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users by score: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return users, nil
}

const challengeColumns = `id, title, category, points, description, flag_secret, hint_text, hint_cost`

func scanChallenge(row interface{ Scan(...any) error }) (*domain.Challenge, error) {
	var ch domain.Challenge
	err := row.Scan(
		&ch.ID, &ch.Title, &ch.Category, &ch.Points,
		&ch.Description, &ch.FlagSecret, &ch.HintText, &ch.HintCost,
	)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetChallenge retrieves a challenge by ID.
func (s *SQLiteStore) GetChallenge(ctx context.Context, challengeID int64) (*domain.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = ?`

	ch, err := scanChallenge(s.db.QueryRowContext(ctx, query, challengeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan challenge row: %w", err)
	}
	return ch, nil
}

// ListChallenges returns all challenges ordered by ID.
func (s *SQLiteStore) ListChallenges(ctx context.Context) ([]*domain.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*domain.Challenge
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge row: %w", err)
		}
		challenges = append(challenges, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challenge rows: %w", err)
	}
	return challenges, nil
}

// SeedChallenges inserts challenges that are not present yet.
func (s *SQLiteStore) SeedChallenges(ctx context.Context, challenges []domain.Challenge) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
	INSERT OR IGNORE INTO challenges (id, title, category, points, description, flag_secret, hint_text, hint_cost)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for _, ch := range challenges {
		if _, err := tx.ExecContext(ctx, query,
			ch.ID, ch.Title, ch.Category, ch.Points,
			ch.Description, ch.FlagSecret, ch.HintText, ch.HintCost,
		); err != nil {
			return fmt.Errorf("seed challenge %d: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}
	return nil
}

// GetSolveRecord retrieves progress for one (user, challenge) pair.
func (s *SQLiteStore) GetSolveRecord(ctx context.Context, userID, challengeID int64) (*domain.SolveRecord, error) {
	query := `
		SELECT user_id, challenge_id, solved, solved_at, hint_unlocked
		FROM solve_records WHERE user_id = ? AND challenge_id = ?`

	rec, err := scanSolveRecord(s.db.QueryRowContext(ctx, query, userID, challengeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan solve record: %w", err)
	}
	return rec, nil
}

func scanSolveRecord(row interface{ Scan(...any) error }) (*domain.SolveRecord, error) {
	var rec domain.SolveRecord
	var solvedAt sql.NullInt64

	err := row.Scan(&rec.UserID, &rec.ChallengeID, &rec.Solved, &solvedAt, &rec.HintUnlocked)
	if err != nil {
		return nil, err
	}

	if solvedAt.Valid {
		t := time.Unix(solvedAt.Int64, 0)
		rec.SolvedAt = &t
	}
	return &rec, nil
}

// ListSolveRecords returns all progress rows for a user keyed by challenge ID.
func (s *SQLiteStore) ListSolveRecords(ctx context.Context, userID int64) (map[int64]*domain.SolveRecord, error) {
	query := `
		SELECT user_id, challenge_id, solved, solved_at, hint_unlocked
		FROM solve_records WHERE user_id = ?`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query solve records: %w", err)
	}
	defer rows.Close()

	records := make(map[int64]*domain.SolveRecord)
	for rows.Next() {
		rec, err := scanSolveRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan solve record: %w", err)
		}
		records[rec.ChallengeID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solve records: %w", err)
	}
	return records, nil
}

const maxBusyRetries = 3

// withBusyRetry re-runs fn when SQLite reports a concurrency conflict.
func withBusyRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		err = fn()
		if !shared.IsSQLiteConflictError(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

// UnlockHint atomically unlocks the hint for (user, challenge).
func (s *SQLiteStore) UnlockHint(ctx context.Context, userID, challengeID int64) (*domain.HintReceipt, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var receipt *domain.HintReceipt
	err := withBusyRetry(func() error {
		var err error
		receipt, err = s.unlockHint(ctx, userID, challengeID)
		return err
	})
	return receipt, err
}

func (s *SQLiteStore) unlockHint(ctx context.Context, userID, challengeID int64) (*domain.HintReceipt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unlock transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var score int
	err = tx.QueryRowContext(ctx, `SELECT score FROM users WHERE id = ?`, userID).Scan(&score)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read user score: %w", err)
	}

	var hintText string
	var hintCost int
	err = tx.QueryRowContext(ctx,
		`SELECT hint_text, hint_cost FROM challenges WHERE id = ?`, challengeID,
	).Scan(&hintText, &hintCost)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read challenge hint: %w", err)
	}

	var unlocked bool
	err = tx.QueryRowContext(ctx,
		`SELECT hint_unlocked FROM solve_records WHERE user_id = ? AND challenge_id = ?`,
		userID, challengeID,
	).Scan(&unlocked)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read solve record: %w", err)
	}

	if unlocked {
		// Idempotent read: no further deduction.
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit unlock transaction: %w", err)
		}
		return &domain.HintReceipt{
			Hint:            hintText,
			Deducted:        0,
			NewScore:        score,
			AlreadyUnlocked: true,
		}, nil
	}

	upsert := `
	INSERT INTO solve_records (user_id, challenge_id, hint_unlocked)
	VALUES (?, ?, 1)
	ON CONFLICT(user_id, challenge_id) DO UPDATE SET hint_unlocked = 1`
	if _, err := tx.ExecContext(ctx, upsert, userID, challengeID); err != nil {
		return nil, fmt.Errorf("mark hint unlocked: %w", err)
	}

	// Deduction is unconditional: the score may go negative.
	newScore := score - hintCost
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET score = ?, updated_at = ? WHERE id = ?`,
		newScore, time.Now().Unix(), userID,
	); err != nil {
		return nil, fmt.Errorf("deduct hint cost: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit unlock transaction: %w", err)
	}

	return &domain.HintReceipt{
		Hint:     hintText,
		Deducted: hintCost,
		NewScore: newScore,
	}, nil
}

// AwardSolve atomically marks (user, challenge) solved and awards points.
func (s *SQLiteStore) AwardSolve(ctx context.Context, userID, challengeID int64) (*domain.SolveReceipt, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var receipt *domain.SolveReceipt
	err := withBusyRetry(func() error {
		var err error
		receipt, err = s.awardSolve(ctx, userID, challengeID)
		return err
	})
	return receipt, err
}

func (s *SQLiteStore) awardSolve(ctx context.Context, userID, challengeID int64) (*domain.SolveReceipt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin award transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var score int
	err = tx.QueryRowContext(ctx, `SELECT score FROM users WHERE id = ?`, userID).Scan(&score)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read user score: %w", err)
	}

	var points int
	err = tx.QueryRowContext(ctx, `SELECT points FROM challenges WHERE id = ?`, challengeID).Scan(&points)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read challenge points: %w", err)
	}

	var solved bool
	var solvedAt sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT solved, solved_at FROM solve_records WHERE user_id = ? AND challenge_id = ?`,
		userID, challengeID,
	).Scan(&solved, &solvedAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read solve record: %w", err)
	}

	if solved {
		// SOLVED is terminal: no double award.
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit award transaction: %w", err)
		}
		receipt := &domain.SolveReceipt{NewScore: score, AlreadySolved: true}
		if solvedAt.Valid {
			receipt.SolvedAt = time.Unix(solvedAt.Int64, 0)
		}
		return receipt, nil
	}

	now := time.Now()
	upsert := `
	INSERT INTO solve_records (user_id, challenge_id, solved, solved_at)
	VALUES (?, ?, 1, ?)
	ON CONFLICT(user_id, challenge_id) DO UPDATE SET solved = 1, solved_at = excluded.solved_at`
	if _, err := tx.ExecContext(ctx, upsert, userID, challengeID, now.Unix()); err != nil {
		return nil, fmt.Errorf("mark solved: %w", err)
	}

	newScore := score + points
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET score = ?, updated_at = ? WHERE id = ?`,
		newScore, now.Unix(), userID,
	); err != nil {
		return nil, fmt.Errorf("award points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit award transaction: %w", err)
	}

	return &domain.SolveReceipt{
		Awarded:  points,
		NewScore: newScore,
		SolvedAt: now,
	}, nil
}
