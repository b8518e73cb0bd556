// Package store provides storage backends for the follow-up engine.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/amoria-labs/followup/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("SQLiteStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore ready", "path", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

// GetSchedule returns the schedule for the pair, or nil if none exists.
func (s *SQLiteStore) GetSchedule(userID, companionName string) (*models.FollowUpSchedule, error) {
	row := s.db.QueryRow(
		`SELECT `+scheduleColumns+` FROM follow_up_schedules WHERE user_id = ? AND companion_name = ?`,
		userID, companionName,
	)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetSchedule failed", "error", err, "userID", userID, "companion", companionName)
		return nil, err
	}
	return sched, nil
}

// SaveSchedule inserts or updates the schedule for its pair.
func (s *SQLiteStore) SaveSchedule(sched *models.FollowUpSchedule) error {
	sched.UpdatedAt = time.Now()
	query := `INSERT INTO follow_up_schedules (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, companion_name) DO UPDATE SET
			twelve_scheduled_at = excluded.twelve_scheduled_at,
			twelve_completed = excluded.twelve_completed,
			twelve_cancelled = excluded.twelve_cancelled,
			twelve_content = excluded.twelve_content,
			twenty_four_scheduled_at = excluded.twenty_four_scheduled_at,
			twenty_four_completed = excluded.twenty_four_completed,
			twenty_four_cancelled = excluded.twenty_four_cancelled,
			twenty_four_content = excluded.twenty_four_content,
			thirty_six_scheduled_at = excluded.thirty_six_scheduled_at,
			thirty_six_completed = excluded.thirty_six_completed,
			thirty_six_cancelled = excluded.thirty_six_cancelled,
			thirty_six_content = excluded.thirty_six_content,
			forty_eight_scheduled_at = excluded.forty_eight_scheduled_at,
			forty_eight_completed = excluded.forty_eight_completed,
			forty_eight_cancelled = excluded.forty_eight_cancelled,
			forty_eight_content = excluded.forty_eight_content,
			last_user_message_at = excluded.last_user_message_at,
			last_bot_message_at = excluded.last_bot_message_at,
			total_user_messages = excluded.total_user_messages,
			total_bot_messages = excluded.total_bot_messages,
			both_have_messaged = excluded.both_have_messaged,
			is_active = excluded.is_active,
			last_reset_at = excluded.last_reset_at,
			current_cycle = excluded.current_cycle,
			next_action = excluded.next_action,
			updated_at = excluded.updated_at`
	if _, err := s.db.Exec(query, scheduleArgs(sched)...); err != nil {
		slog.Error("SQLiteStore.SaveSchedule failed", "error", err, "userID", sched.UserID, "companion", sched.CompanionName)
		return fmt.Errorf("failed to save schedule for %s-%s: %w", sched.UserID, sched.CompanionName, err)
	}
	return nil
}

// ListDueSchedules returns active schedules with at least one due slot.
func (s *SQLiteStore) ListDueSchedules(now time.Time) ([]*models.FollowUpSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM follow_up_schedules
		WHERE is_active = 1 AND (
			(twelve_scheduled_at IS NOT NULL AND twelve_scheduled_at <= ? AND twelve_completed = 0 AND twelve_cancelled = 0) OR
			(twenty_four_scheduled_at IS NOT NULL AND twenty_four_scheduled_at <= ? AND twenty_four_completed = 0 AND twenty_four_cancelled = 0) OR
			(thirty_six_scheduled_at IS NOT NULL AND thirty_six_scheduled_at <= ? AND thirty_six_completed = 0 AND thirty_six_cancelled = 0) OR
			(forty_eight_scheduled_at IS NOT NULL AND forty_eight_scheduled_at <= ? AND forty_eight_completed = 0 AND forty_eight_cancelled = 0)
		)`
	rows, err := s.db.Query(query, now, now, now, now)
	if err != nil {
		slog.Error("SQLiteStore.ListDueSchedules query failed", "error", err)
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ListActiveSchedules returns all schedules whose cycle is still running.
func (s *SQLiteStore) ListActiveSchedules() ([]*models.FollowUpSchedule, error) {
	rows, err := s.db.Query(`SELECT ` + scheduleColumns + ` FROM follow_up_schedules WHERE is_active = 1`)
	if err != nil {
		slog.Error("SQLiteStore.ListActiveSchedules query failed", "error", err)
		return nil, fmt.Errorf("failed to query active schedules: %w", err)
	}
	return collectSchedules(rows)
}

// GetCompanion returns the companion by name, or nil if not found.
func (s *SQLiteStore) GetCompanion(name string) (*models.Companion, error) {
	row := s.db.QueryRow(
		`SELECT name, personality, age, bio, image, is_active FROM companions WHERE name = ?`, name,
	)
	c, err := scanCompanion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetCompanion failed", "error", err, "name", name)
		return nil, err
	}
	return c, nil
}

// SaveCompanion inserts or updates a companion record.
func (s *SQLiteStore) SaveCompanion(c models.Companion) error {
	_, err := s.db.Exec(
		`INSERT INTO companions (name, personality, age, bio, image, is_active) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
			personality = excluded.personality,
			age = excluded.age,
			bio = excluded.bio,
			image = excluded.image,
			is_active = excluded.is_active`,
		c.Name, c.Personality, c.Age, nilIfEmpty(c.Bio), nilIfEmpty(c.Image), c.IsActive,
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveCompanion failed", "error", err, "name", c.Name)
		return fmt.Errorf("failed to save companion %s: %w", c.Name, err)
	}
	return nil
}

// RecentMessages returns up to limit most recent messages, oldest first.
func (s *SQLiteStore) RecentMessages(userID, companionName string, limit int) ([]models.ChatMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, sender, body, sent_at FROM chat_messages
		 WHERE user_id = ? AND companion_name = ?
		 ORDER BY sent_at DESC LIMIT ?`,
		userID, companionName, limit,
	)
	if err != nil {
		slog.Error("SQLiteStore.RecentMessages query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.Sender, &m.Body, &m.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// AppendChatMessage stores a message for the pair.
func (s *SQLiteStore) AppendChatMessage(userID, companionName string, msg models.ChatMessage) error {
	_, err := s.db.Exec(
		`INSERT INTO chat_messages (id, user_id, companion_name, sender, body, sent_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, userID, companionName, msg.Sender, msg.Body, msg.SentAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.AppendChatMessage failed", "error", err, "userID", userID, "companion", companionName)
		return fmt.Errorf("failed to append chat message for %s-%s: %w", userID, companionName, err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
