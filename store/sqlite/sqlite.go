/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:
  Persists every capture-engine collection in one SQLite database. The
  same schema maps to PostgreSQL with minor dialect changes.

KEY TABLES:
  users:              Player aggregates
  pois:               Capturable locations and their current king
  sessions:           Append-only capture sessions
  challenges:         Generated challenges with progress and completion
  rewards:            Read-only reward catalog
  reward_activations: One row per (user_id, id) granted reward
  globals:            Config documents keyed by slug

INDEXES:
  - idx_challenges_user_period: Generation guard and per-user reads
  - idx_challenges_open_expiry: Challenge expiry sweep
  - idx_activations_season: Season sweep
  - idx_activations_user: Per-user ordered reads and sweep-on-write

COMPLETION GUARD:
  UpdateChallengeProgress is a single UPDATE with "completed_at IS NULL" in
  its WHERE clause, so completion is set once even under overlapping writers.

TIME FORMAT:
  Times are stored as fixed-width UTC strings so lexical order matches
  chronological order in range predicates.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to a
  single connection since each connection would otherwise get its own DB.

USAGE:
  store, err := sqlite.New("./data/capture.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/capture-engine/engine"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ engine.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"reward_activations", "challenges", "sessions", "rewards", "pois", "users", "globals"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		total_seconds INTEGER NOT NULL DEFAULT 0,
		total_pois_claimed INTEGER NOT NULL DEFAULT 0,
		current_king_of INTEGER NOT NULL DEFAULT 0,
		coins INTEGER NOT NULL DEFAULT 0,
		last_active TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pois (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		latitude REAL NOT NULL DEFAULT 0,
		longitude REAL NOT NULL DEFAULT 0,
		type TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		current_king TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_pois_king ON pois(current_king);

	-- Sessions (append-only)
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		poi_id TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		seconds_earned INTEGER NOT NULL CHECK (seconds_earned > 0),
		month TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, start_time);
	CREATE INDEX IF NOT EXISTS idx_sessions_poi ON sessions(poi_id, start_time);

	CREATE TABLE IF NOT EXISTS challenges (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		period TEXT NOT NULL,
		challenge_type TEXT NOT NULL,
		tier TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		target_value INTEGER NOT NULL,
		target_category TEXT,
		reward_difficulty INTEGER NOT NULL,
		cost INTEGER NOT NULL DEFAULT 0 CHECK (cost >= 0),
		reward_id TEXT,
		progress INTEGER NOT NULL DEFAULT 0,
		completed_at TEXT,
		expires_at TEXT NOT NULL,
		shared INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_challenges_user_period
		ON challenges(user_id, period, expires_at);
	CREATE INDEX IF NOT EXISTS idx_challenges_open_expiry
		ON challenges(expires_at) WHERE completed_at IS NULL;

	-- Reward catalog (seeded, read-only to the engine)
	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		reward_type TEXT NOT NULL,
		reward_value REAL NOT NULL,
		reward_duration INTEGER,
		reward_uses INTEGER,
		difficulty INTEGER NOT NULL CHECK (difficulty BETWEEN 1 AND 9),
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_rewards_difficulty ON rewards(difficulty, is_active);

	CREATE TABLE IF NOT EXISTS reward_activations (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		reward_id TEXT NOT NULL,
		reward_type TEXT NOT NULL,
		reward_value REAL NOT NULL,
		activated_at TEXT NOT NULL,
		duration INTEGER,
		uses_remaining INTEGER,
		season TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		challenge_id TEXT,
		PRIMARY KEY (user_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_activations_user
		ON reward_activations(user_id, activated_at);
	CREATE INDEX IF NOT EXISTS idx_activations_season
		ON reward_activations(season, reward_type) WHERE season IS NOT NULL;

	CREATE TABLE IF NOT EXISTS globals (
		slug TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, name, total_seconds, total_pois_claimed, current_king_of, coins, last_active, created_at`

func (s *Store) GetUser(ctx context.Context, id engine.UserID) (*engine.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *Store) SaveUser(ctx context.Context, u engine.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			total_seconds = excluded.total_seconds,
			total_pois_claimed = excluded.total_pois_claimed,
			current_king_of = excluded.current_king_of,
			coins = excluded.coins,
			last_active = excluded.last_active
	`, u.ID, u.Name, u.TotalSeconds, u.TotalPOIsClaimed, u.CurrentKingOf, u.Coins,
		nullTime(u.LastActive), formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, f engine.UserFilter) ([]engine.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w where
	if f.AfterID != "" {
		w.add("id > ?", f.AfterID)
	}
	if f.MinTotalSeconds != nil {
		w.add("total_seconds > ?", *f.MinTotalSeconds)
	}
	query := `SELECT ` + userColumns + ` FROM users` + w.sql() + ` ORDER BY id` + limitClause(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []engine.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func scanUser(sc scanner) (*engine.User, error) {
	var u engine.User
	var lastActive sql.NullString
	var createdAt string
	if err := sc.Scan(&u.ID, &u.Name, &u.TotalSeconds, &u.TotalPOIsClaimed, &u.CurrentKingOf,
		&u.Coins, &lastActive, &createdAt); err != nil {
		return nil, err
	}
	u.LastActive = parseNullTime(lastActive)
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// =============================================================================
// POIS
// =============================================================================

const poiColumns = `id, name, latitude, longitude, type, category, current_king`

func (s *Store) GetPOI(ctx context.Context, id engine.POIID) (*engine.POI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+poiColumns+` FROM pois WHERE id = ?`, id)
	p, err := scanPOI(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrPOINotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get poi: %w", err)
	}
	return p, nil
}

func (s *Store) SavePOI(ctx context.Context, p engine.POI) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO pois (`+poiColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Latitude, p.Longitude, p.Type, p.Category, nullUserID(p.CurrentKing))
	if isUniqueConstraintError(err) {
		return engine.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to save poi: %w", err)
	}
	return nil
}

func (s *Store) ListPOIs(ctx context.Context, f engine.POIFilter) ([]engine.POI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w where
	if f.AfterID != "" {
		w.add("id > ?", f.AfterID)
	}
	if f.KingID != nil {
		w.add("current_king = ?", *f.KingID)
	}
	query := `SELECT ` + poiColumns + ` FROM pois` + w.sql() + ` ORDER BY id` + limitClause(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pois: %w", err)
	}
	defer rows.Close()

	var pois []engine.POI
	for rows.Next() {
		p, err := scanPOI(rows)
		if err != nil {
			return nil, err
		}
		pois = append(pois, *p)
	}
	return pois, rows.Err()
}

func (s *Store) SetPOIKing(ctx context.Context, id engine.POIID, king *engine.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE pois SET current_king = ? WHERE id = ?`, nullUserID(king), id)
	if err != nil {
		return fmt.Errorf("failed to set poi king: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrPOINotFound
	}
	return nil
}

func scanPOI(sc scanner) (*engine.POI, error) {
	var p engine.POI
	var king sql.NullString
	if err := sc.Scan(&p.ID, &p.Name, &p.Latitude, &p.Longitude, &p.Type, &p.Category, &king); err != nil {
		return nil, err
	}
	if king.Valid {
		u := engine.UserID(king.String)
		p.CurrentKing = &u
	}
	return &p, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

const sessionColumns = `id, user_id, poi_id, start_time, end_time, seconds_earned, month, created_at`

// AppendSession adds a session. Append-only.
func (s *Store) AppendSession(ctx context.Context, sess engine.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.POIID, formatTime(sess.StartTime), formatTime(sess.EndTime),
		sess.SecondsEarned, sess.Month, formatTime(sess.CreatedAt))
	if isUniqueConstraintError(err) {
		return engine.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to append session: %w", err)
	}
	return nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, user engine.UserID) ([]engine.Session, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY start_time, id`, user)
}

func (s *Store) ListSessionsByPOI(ctx context.Context, poi engine.POIID) ([]engine.Session, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE poi_id = ? ORDER BY start_time, id`, poi)
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]engine.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []engine.Session
	for rows.Next() {
		var sess engine.Session
		var start, end, created string
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.POIID, &start, &end,
			&sess.SecondsEarned, &sess.Month, &created); err != nil {
			return nil, err
		}
		sess.StartTime = parseTime(start)
		sess.EndTime = parseTime(end)
		sess.CreatedAt = parseTime(created)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// =============================================================================
// CHALLENGES
// =============================================================================

const challengeColumns = `id, user_id, period, challenge_type, tier, title, description, target_value,
	target_category, reward_difficulty, cost, reward_id, progress, completed_at, expires_at, shared, created_at`

func (s *Store) CreateChallenge(ctx context.Context, c engine.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	var rewardID sql.NullString
	if c.RewardID != nil {
		rewardID = sql.NullString{String: string(*c.RewardID), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO challenges (`+challengeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Period, c.Type, c.Tier, c.Title, c.Description, c.TargetValue,
		nullStringPtr(c.TargetCategory), c.RewardDifficulty, c.Cost, rewardID, c.Progress,
		nullTime(c.CompletedAt), formatTime(c.ExpiresAt), c.Shared, formatTime(c.CreatedAt))
	if isUniqueConstraintError(err) {
		return engine.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

func (s *Store) GetChallenge(ctx context.Context, id engine.ChallengeID) (*engine.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, id)
	c, err := scanChallenge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return c, nil
}

func (s *Store) ListChallenges(ctx context.Context, f engine.ChallengeFilter) ([]engine.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w where
	if f.UserID != nil {
		w.add("user_id = ?", *f.UserID)
	}
	if f.Period != nil {
		w.add("period = ?", *f.Period)
	}
	if f.OpenOnly {
		w.add("completed_at IS NULL")
	}
	if f.ExpiresAfter != nil {
		w.add("expires_at > ?", formatTime(*f.ExpiresAfter))
	}
	if f.ExpiredBefore != nil {
		w.add("expires_at < ?", formatTime(*f.ExpiredBefore))
	}
	if f.AfterID != "" {
		w.add("id > ?", f.AfterID)
	}
	query := `SELECT ` + challengeColumns + ` FROM challenges` + w.sql() + ` ORDER BY id` + limitClause(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []engine.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, *c)
	}
	return challenges, rows.Err()
}

func (s *Store) UpdateChallengeProgress(ctx context.Context, id engine.ChallengeID, progress int64, completedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE challenges SET progress = ?, completed_at = ? WHERE id = ? AND completed_at IS NULL`,
		progress, nullTime(completedAt), id)
	if err != nil {
		return false, fmt.Errorf("failed to update challenge progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM challenges WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, engine.ErrChallengeNotFound
	}
	return false, err
}

func (s *Store) DeleteChallenge(ctx context.Context, id engine.ChallengeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM challenges WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrChallengeNotFound
	}
	return nil
}

func scanChallenge(sc scanner) (*engine.Challenge, error) {
	var c engine.Challenge
	var category, rewardID, completedAt sql.NullString
	var expiresAt, createdAt string
	if err := sc.Scan(&c.ID, &c.UserID, &c.Period, &c.Type, &c.Tier, &c.Title, &c.Description,
		&c.TargetValue, &category, &c.RewardDifficulty, &c.Cost, &rewardID, &c.Progress,
		&completedAt, &expiresAt, &c.Shared, &createdAt); err != nil {
		return nil, err
	}
	if category.Valid {
		c.TargetCategory = &category.String
	}
	if rewardID.Valid {
		r := engine.RewardID(rewardID.String)
		c.RewardID = &r
	}
	c.CompletedAt = parseNullTime(completedAt)
	c.ExpiresAt = parseTime(expiresAt)
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// =============================================================================
// REWARD CATALOG
// =============================================================================

const rewardColumns = `id, name, reward_type, reward_value, reward_duration, reward_uses, difficulty, is_active`

func (s *Store) GetReward(ctx context.Context, id engine.RewardID) (*engine.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrRewardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	return r, nil
}

func (s *Store) ListRewards(ctx context.Context, f engine.RewardFilter) ([]engine.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w where
	if f.Difficulty != nil {
		w.add("difficulty = ?", *f.Difficulty)
	}
	if f.ActiveOnly {
		w.add("is_active = 1")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+rewardColumns+` FROM rewards`+w.sql()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []engine.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *Store) SaveReward(ctx context.Context, r engine.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rewards (`+rewardColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			reward_type = excluded.reward_type,
			reward_value = excluded.reward_value,
			reward_duration = excluded.reward_duration,
			reward_uses = excluded.reward_uses,
			difficulty = excluded.difficulty,
			is_active = excluded.is_active
	`, r.ID, r.Name, r.Type, r.Value, nullInt(r.DurationHours), nullInt(r.Uses), r.Difficulty, r.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save reward: %w", err)
	}
	return nil
}

func scanReward(sc scanner) (*engine.Reward, error) {
	var r engine.Reward
	var duration, uses sql.NullInt64
	if err := sc.Scan(&r.ID, &r.Name, &r.Type, &r.Value, &duration, &uses, &r.Difficulty, &r.IsActive); err != nil {
		return nil, err
	}
	r.DurationHours = parseNullInt(duration)
	r.Uses = parseNullInt(uses)
	return &r, nil
}

// =============================================================================
// ACTIVATIONS
// =============================================================================

const activationColumns = `user_id, id, reward_id, reward_type, reward_value, activated_at, duration,
	uses_remaining, season, is_active, challenge_id`

func (s *Store) AppendActivation(ctx context.Context, a engine.Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var challengeID sql.NullString
	if a.ChallengeID != nil {
		challengeID = sql.NullString{String: string(*a.ChallengeID), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO reward_activations (`+activationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.ID, a.RewardID, a.RewardType, a.RewardValue, formatTime(a.ActivatedAt),
		nullInt(a.DurationHours), nullInt(a.UsesRemaining), nullStringPtr(a.Season), a.IsActive, challengeID)
	if isUniqueConstraintError(err) {
		return engine.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to append activation: %w", err)
	}
	return nil
}

func (s *Store) GetActivation(ctx context.Context, user engine.UserID, id engine.ActivationID) (*engine.Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+activationColumns+` FROM reward_activations WHERE user_id = ? AND id = ?`, user, id)
	a, err := scanActivation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrActivationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activation: %w", err)
	}
	return a, nil
}

func (s *Store) ListActivations(ctx context.Context, f engine.ActivationFilter) ([]engine.Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w where
	order := " ORDER BY id"
	if f.UserID != nil {
		w.add("user_id = ?", *f.UserID)
		order = " ORDER BY activated_at, id"
	}
	if f.RewardType != nil {
		w.add("reward_type = ?", *f.RewardType)
	}
	if f.Season != nil {
		w.add("season = ?", *f.Season)
	}
	if f.AfterID != "" {
		w.add("id > ?", f.AfterID)
	}
	query := `SELECT ` + activationColumns + ` FROM reward_activations` + w.sql() + order + limitClause(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activations: %w", err)
	}
	defer rows.Close()

	var out []engine.Activation
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateActivation(ctx context.Context, a engine.Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE reward_activations
		SET duration = ?, uses_remaining = ?, season = ?, is_active = ?
		WHERE user_id = ? AND id = ?
	`, nullInt(a.DurationHours), nullInt(a.UsesRemaining), nullStringPtr(a.Season), a.IsActive, a.UserID, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update activation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrActivationNotFound
	}
	return nil
}

func (s *Store) DeleteActivation(ctx context.Context, user engine.UserID, id engine.ActivationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM reward_activations WHERE user_id = ? AND id = ?`, user, id)
	if err != nil {
		return fmt.Errorf("failed to delete activation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrActivationNotFound
	}
	return nil
}

func scanActivation(sc scanner) (*engine.Activation, error) {
	var a engine.Activation
	var activatedAt string
	var duration, uses sql.NullInt64
	var season, challengeID sql.NullString
	if err := sc.Scan(&a.UserID, &a.ID, &a.RewardID, &a.RewardType, &a.RewardValue, &activatedAt,
		&duration, &uses, &season, &a.IsActive, &challengeID); err != nil {
		return nil, err
	}
	a.ActivatedAt = parseTime(activatedAt)
	a.DurationHours = parseNullInt(duration)
	a.UsesRemaining = parseNullInt(uses)
	if season.Valid {
		a.Season = &season.String
	}
	if challengeID.Valid {
		c := engine.ChallengeID(challengeID.String)
		a.ChallengeID = &c
	}
	return &a, nil
}

// =============================================================================
// GLOBALS
// =============================================================================

func (s *Store) GetGlobal(ctx context.Context, slug string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM globals WHERE slug = ?`, slug).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrGlobalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get global %s: %w", slug, err)
	}
	return []byte(doc), nil
}

func (s *Store) SaveGlobal(ctx context.Context, slug string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO globals (slug, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, slug, string(doc), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save global %s: %w", slug, err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

// where accumulates AND-composed predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func limitClause(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", n)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullUserID(u *engine.UserID) sql.NullString {
	if u == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*u), Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func parseNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
