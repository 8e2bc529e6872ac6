package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"concierge/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.ProfileStore, domain.HistoryStore, and
// domain.ActionStore on a single SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	logger   *slog.Logger
	maxTurns int            // history trimmed to this trailing window per sender
	defaults domain.Profile // applied when a sender has no stored profile
}

// Config configures the SQLite store.
type Config struct {
	DBPath   string
	MaxTurns int
	Defaults domain.Profile
	Logger   *slog.Logger
}

func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{
		db:       db,
		logger:   cfg.Logger,
		maxTurns: cfg.MaxTurns,
		defaults: cfg.Defaults,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		sender_id    TEXT PRIMARY KEY,
		persona_name TEXT,
		gender       TEXT,
		traits       TEXT,
		language     TEXT,
		timezone     TEXT,
		audio_reply  INTEGER DEFAULT 0,
		updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS history (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id      TEXT NOT NULL,
		user_text      TEXT,
		assistant_text TEXT,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_history_sender ON history(sender_id, created_at);

	CREATE TABLE IF NOT EXISTS expenses (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id   TEXT NOT NULL,
		amount      REAL NOT NULL,
		currency    TEXT,
		category    TEXT,
		description TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_expenses_sender ON expenses(sender_id, created_at);

	CREATE TABLE IF NOT EXISTS reminders (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id  TEXT NOT NULL,
		title      TEXT NOT NULL,
		due_at     DATETIME,
		done       INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_reminders_sender ON reminders(sender_id, done);

	CREATE TABLE IF NOT EXISTS events (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id    TEXT NOT NULL,
		title        TEXT NOT NULL,
		starts_at    DATETIME NOT NULL,
		duration_min INTEGER DEFAULT 60,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_sender ON events(sender_id, starts_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- domain.ProfileStore ---

// GetProfile returns the stored profile for a sender, or the configured
// defaults when none exists. Only transport failures produce an error.
func (s *SQLiteStore) GetProfile(ctx context.Context, senderID string) (domain.Profile, error) {
	var (
		p          domain.Profile
		traitsJSON sql.NullString
		audioReply int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT sender_id, persona_name, gender, traits, language, timezone, audio_reply
		 FROM profiles WHERE sender_id = ?`, senderID,
	).Scan(&p.SenderID, &p.PersonaName, &p.Gender, &traitsJSON, &p.Language, &p.Timezone, &audioReply)
	if err == sql.ErrNoRows {
		def := s.defaults
		def.SenderID = senderID
		return def, nil
	}
	if err != nil {
		return domain.Profile{}, err
	}

	p.AudioReply = audioReply != 0
	if traitsJSON.Valid && traitsJSON.String != "" {
		if err := json.Unmarshal([]byte(traitsJSON.String), &p.Traits); err != nil {
			s.logger.Warn("corrupt traits column, using defaults", "sender", senderID, "err", err)
			p.Traits = s.defaults.Traits
		}
	}
	// Backfill blank columns from defaults so a partial profile still renders.
	if p.PersonaName == "" {
		p.PersonaName = s.defaults.PersonaName
	}
	if p.Language == "" {
		p.Language = s.defaults.Language
	}
	if p.Timezone == "" {
		p.Timezone = s.defaults.Timezone
	}
	return p, nil
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, p domain.Profile) error {
	traits, err := json.Marshal(p.Traits)
	if err != nil {
		return fmt.Errorf("marshal traits: %w", err)
	}
	audio := 0
	if p.AudioReply {
		audio = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (sender_id, persona_name, gender, traits, language, timezone, audio_reply, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(sender_id) DO UPDATE SET
			persona_name=excluded.persona_name,
			gender=excluded.gender,
			traits=excluded.traits,
			language=excluded.language,
			timezone=excluded.timezone,
			audio_reply=excluded.audio_reply,
			updated_at=excluded.updated_at`,
		p.SenderID, p.PersonaName, p.Gender, string(traits), p.Language, p.Timezone, audio, time.Now(),
	)
	return err
}

// --- domain.HistoryStore ---

// AppendTurn records one user/assistant exchange and trims the sender's log
// to the trailing window.
func (s *SQLiteStore) AppendTurn(ctx context.Context, senderID, userText, assistantText string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO history (sender_id, user_text, assistant_text, created_at) VALUES (?, ?, ?, ?)`,
		senderID, userText, assistantText, time.Now(),
	); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM history WHERE sender_id = ? AND id NOT IN (
			SELECT id FROM history WHERE sender_id = ? ORDER BY id DESC LIMIT ?
		)`, senderID, senderID, s.maxTurns,
	)
	return err
}

func (s *SQLiteStore) LoadRecent(ctx context.Context, senderID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender_id, user_text, assistant_text, created_at FROM (
			SELECT * FROM history WHERE sender_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, senderID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *SQLiteStore) LoadAll(ctx context.Context, senderID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender_id, user_text, assistant_text, created_at
		 FROM history WHERE sender_id = ? ORDER BY id ASC`, senderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]domain.Turn, error) {
	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(&t.SenderID, &t.UserText, &t.AssistantText, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// --- domain.ActionStore ---

func (s *SQLiteStore) AddExpense(ctx context.Context, e domain.Expense) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (sender_id, amount, currency, category, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SenderID, e.Amount, e.Currency, e.Category, e.Description, e.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) ListExpenses(ctx context.Context, senderID string, limit int) ([]domain.Expense, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, amount, currency, category, description, created_at
		 FROM expenses WHERE sender_id = ? ORDER BY created_at DESC LIMIT ?`, senderID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Expense
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.SenderID, &e.Amount, &e.Currency, &e.Category, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddReminder(ctx context.Context, r domain.Reminder) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (sender_id, title, due_at, done, created_at) VALUES (?, ?, ?, 0, ?)`,
		r.SenderID, r.Title, r.DueAt, r.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) ListOpenReminders(ctx context.Context, senderID string, limit int) ([]domain.Reminder, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, title, due_at, done, created_at
		 FROM reminders WHERE sender_id = ? AND done = 0 ORDER BY created_at ASC LIMIT ?`, senderID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reminder
	for rows.Next() {
		var (
			r    domain.Reminder
			due  sql.NullTime
			done int
		)
		if err := rows.Scan(&r.ID, &r.SenderID, &r.Title, &due, &done, &r.CreatedAt); err != nil {
			return nil, err
		}
		if due.Valid {
			r.DueAt = &due.Time
		}
		r.Done = done != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddEvent(ctx context.Context, e domain.Event) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.DurationMin <= 0 {
		e.DurationMin = 60
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (sender_id, title, starts_at, duration_min, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.SenderID, e.Title, e.StartsAt, e.DurationMin, e.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) ListUpcomingEvents(ctx context.Context, senderID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, title, starts_at, duration_min, created_at
		 FROM events WHERE sender_id = ? AND starts_at >= ? ORDER BY starts_at ASC LIMIT ?`,
		senderID, time.Now(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.SenderID, &e.Title, &e.StartsAt, &e.DurationMin, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeOld deletes history and completed reminders older than the retention
// window. Intended to run periodically from the gateway.
func (s *SQLiteStore) PurgeOld(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE created_at < ?`, cutoff); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE done = 1 AND created_at < ?`, cutoff)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
