package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"earshot/internal/kit"
	"earshot/internal/rules"
	"earshot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the configured store. It returns (nil, nil) when
// storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- profiles ----

func (s *sqliteStore) LoadProfiles(ctx context.Context) ([]kit.Profile, map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, sound, title_template, message_template, volume, priority, enabled, settings FROM profiles`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var profiles []kit.Profile
	for rows.Next() {
		var (
			p        kit.Profile
			sound    string
			priority string
			enabled  int
			settings sql.NullString
		)
		if err := rows.Scan(&p.Name, &sound, &p.TitleTemplate, &p.MessageTemplate, &p.Volume, &priority, &enabled, &settings); err != nil {
			return nil, nil, err
		}
		p.Sound = kit.ParseSound(sound)
		p.Priority = kit.ParsePriority(priority)
		p.Enabled = enabled != 0
		if settings.Valid && settings.String != "" {
			var bs kit.BackendSettings
			if err := json.Unmarshal([]byte(settings.String), &bs); err == nil {
				p.Settings = bs
			} else {
				s.log.Warn("dropping unreadable profile settings", logx.String("profile", p.Name), logx.Err(err))
			}
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	assignments := map[string]string{}
	arows, err := s.db.QueryContext(ctx, `SELECT sender_id, profile_name FROM user_profiles`)
	if err != nil {
		return nil, nil, err
	}
	defer arows.Close()
	for arows.Next() {
		var sender, name string
		if err := arows.Scan(&sender, &name); err != nil {
			return nil, nil, err
		}
		assignments[sender] = name
	}
	return profiles, assignments, arows.Err()
}

func (s *sqliteStore) SaveProfiles(ctx context.Context, profiles []kit.Profile, assignments map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM profiles`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_profiles`); err != nil {
		return err
	}

	for _, p := range profiles {
		var settings any
		if len(p.Settings) > 0 {
			b, err := json.Marshal(p.Settings)
			if err != nil {
				return err
			}
			settings = string(b)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO profiles(name, sound, title_template, message_template, volume, priority, enabled, settings)
			 VALUES(?,?,?,?,?,?,?,?)`,
			p.Name, string(p.Sound), p.TitleTemplate, p.MessageTemplate, p.Volume, string(p.Priority), boolInt(p.Enabled), settings,
		); err != nil {
			return err
		}
	}
	for sender, name := range assignments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_profiles(sender_id, profile_name) VALUES(?,?)`, sender, name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ---- rules ----

func (s *sqliteStore) LoadRules(ctx context.Context) ([]rules.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, conditions, actions, priority, enabled FROM rules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		var (
			r          rules.Rule
			conditions string
			actions    string
			priority   string
			enabled    int
		)
		if err := rows.Scan(&r.ID, &r.Name, &conditions, &actions, &priority, &enabled); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(conditions), &r.Conditions); err != nil {
			s.log.Warn("skipping rule with unreadable conditions", logx.String("rule", r.ID), logx.Err(err))
			continue
		}
		acts, err := rules.DecodeActions([]byte(actions))
		if err != nil {
			s.log.Warn("skipping rule with unreadable actions", logx.String("rule", r.ID), logx.Err(err))
			continue
		}
		r.Actions = acts
		r.Priority = kit.ParsePriority(priority)
		r.Enabled = enabled != 0
		r.Exceptions = map[string]struct{}{}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveRule(ctx context.Context, r rules.Rule) error {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return err
	}
	actions, err := rules.EncodeActions(r.Actions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rules(id, name, conditions, actions, priority, enabled)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, conditions=excluded.conditions,
		   actions=excluded.actions, priority=excluded.priority, enabled=excluded.enabled`,
		r.ID, r.Name, string(conditions), string(actions), string(r.Priority), boolInt(r.Enabled),
	)
	return err
}

func (s *sqliteStore) DeleteRule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	return err
}

// ---- users ----

func (s *sqliteStore) GetUserByEmail(ctx context.Context, email string) (User, bool, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email FROM users WHERE email = ?`, email).Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

func (s *sqliteStore) PutUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, name, email) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, email=excluded.email`,
		u.ID, u.Name, u.Email,
	)
	return err
}

// ---- tokens ----

func (s *sqliteStore) SaveTokens(ctx context.Context, t Tokens) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO config(key, value) VALUES('tokens', ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, string(b))
	return err
}

func (s *sqliteStore) Tokens(ctx context.Context) (Tokens, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = 'tokens'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Tokens{}, false, nil
	}
	if err != nil {
		return Tokens{}, false, err
	}
	var t Tokens
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Tokens{}, false, err
	}
	return t, true, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
