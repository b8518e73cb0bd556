// Package store provides storage backends for the follow-up engine.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/amoria-labs/followup/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN and
// runs migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("PostgresStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore ready")
	return &PostgresStore{db: db}, nil
}

// GetSchedule returns the schedule for the pair, or nil if none exists.
func (s *PostgresStore) GetSchedule(userID, companionName string) (*models.FollowUpSchedule, error) {
	row := s.db.QueryRow(
		`SELECT `+scheduleColumns+` FROM follow_up_schedules WHERE user_id = $1 AND companion_name = $2`,
		userID, companionName,
	)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetSchedule failed", "error", err, "userID", userID, "companion", companionName)
		return nil, err
	}
	return sched, nil
}

// SaveSchedule inserts or updates the schedule for its pair.
func (s *PostgresStore) SaveSchedule(sched *models.FollowUpSchedule) error {
	sched.UpdatedAt = time.Now()
	query := `INSERT INTO follow_up_schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
		ON CONFLICT (user_id, companion_name) DO UPDATE SET
			twelve_scheduled_at = EXCLUDED.twelve_scheduled_at,
			twelve_completed = EXCLUDED.twelve_completed,
			twelve_cancelled = EXCLUDED.twelve_cancelled,
			twelve_content = EXCLUDED.twelve_content,
			twenty_four_scheduled_at = EXCLUDED.twenty_four_scheduled_at,
			twenty_four_completed = EXCLUDED.twenty_four_completed,
			twenty_four_cancelled = EXCLUDED.twenty_four_cancelled,
			twenty_four_content = EXCLUDED.twenty_four_content,
			thirty_six_scheduled_at = EXCLUDED.thirty_six_scheduled_at,
			thirty_six_completed = EXCLUDED.thirty_six_completed,
			thirty_six_cancelled = EXCLUDED.thirty_six_cancelled,
			thirty_six_content = EXCLUDED.thirty_six_content,
			forty_eight_scheduled_at = EXCLUDED.forty_eight_scheduled_at,
			forty_eight_completed = EXCLUDED.forty_eight_completed,
			forty_eight_cancelled = EXCLUDED.forty_eight_cancelled,
			forty_eight_content = EXCLUDED.forty_eight_content,
			last_user_message_at = EXCLUDED.last_user_message_at,
			last_bot_message_at = EXCLUDED.last_bot_message_at,
			total_user_messages = EXCLUDED.total_user_messages,
			total_bot_messages = EXCLUDED.total_bot_messages,
			both_have_messaged = EXCLUDED.both_have_messaged,
			is_active = EXCLUDED.is_active,
			last_reset_at = EXCLUDED.last_reset_at,
			current_cycle = EXCLUDED.current_cycle,
			next_action = EXCLUDED.next_action,
			updated_at = EXCLUDED.updated_at`
	if _, err := s.db.Exec(query, scheduleArgs(sched)...); err != nil {
		slog.Error("PostgresStore.SaveSchedule failed", "error", err, "userID", sched.UserID, "companion", sched.CompanionName)
		return fmt.Errorf("failed to save schedule for %s-%s: %w", sched.UserID, sched.CompanionName, err)
	}
	return nil
}

// ListDueSchedules returns active schedules with at least one due slot.
func (s *PostgresStore) ListDueSchedules(now time.Time) ([]*models.FollowUpSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM follow_up_schedules
		WHERE is_active AND (
			(twelve_scheduled_at IS NOT NULL AND twelve_scheduled_at <= $1 AND NOT twelve_completed AND NOT twelve_cancelled) OR
			(twenty_four_scheduled_at IS NOT NULL AND twenty_four_scheduled_at <= $1 AND NOT twenty_four_completed AND NOT twenty_four_cancelled) OR
			(thirty_six_scheduled_at IS NOT NULL AND thirty_six_scheduled_at <= $1 AND NOT thirty_six_completed AND NOT thirty_six_cancelled) OR
			(forty_eight_scheduled_at IS NOT NULL AND forty_eight_scheduled_at <= $1 AND NOT forty_eight_completed AND NOT forty_eight_cancelled)
		)`
	rows, err := s.db.Query(query, now)
	if err != nil {
		slog.Error("PostgresStore.ListDueSchedules query failed", "error", err)
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ListActiveSchedules returns all schedules whose cycle is still running.
func (s *PostgresStore) ListActiveSchedules() ([]*models.FollowUpSchedule, error) {
	rows, err := s.db.Query(`SELECT ` + scheduleColumns + ` FROM follow_up_schedules WHERE is_active`)
	if err != nil {
		slog.Error("PostgresStore.ListActiveSchedules query failed", "error", err)
		return nil, fmt.Errorf("failed to query active schedules: %w", err)
	}
	return collectSchedules(rows)
}

// GetCompanion returns the companion by name, or nil if not found.
func (s *PostgresStore) GetCompanion(name string) (*models.Companion, error) {
	row := s.db.QueryRow(
		`SELECT name, personality, age, bio, image, is_active FROM companions WHERE name = $1`, name,
	)
	c, err := scanCompanion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetCompanion failed", "error", err, "name", name)
		return nil, err
	}
	return c, nil
}

// SaveCompanion inserts or updates a companion record.
func (s *PostgresStore) SaveCompanion(c models.Companion) error {
	_, err := s.db.Exec(
		`INSERT INTO companions (name, personality, age, bio, image, is_active) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (name) DO UPDATE SET
			personality = EXCLUDED.personality,
			age = EXCLUDED.age,
			bio = EXCLUDED.bio,
			image = EXCLUDED.image,
			is_active = EXCLUDED.is_active`,
		c.Name, c.Personality, c.Age, nilIfEmpty(c.Bio), nilIfEmpty(c.Image), c.IsActive,
	)
	if err != nil {
		slog.Error("PostgresStore.SaveCompanion failed", "error", err, "name", c.Name)
		return fmt.Errorf("failed to save companion %s: %w", c.Name, err)
	}
	return nil
}

// RecentMessages returns up to limit most recent messages, oldest first.
func (s *PostgresStore) RecentMessages(userID, companionName string, limit int) ([]models.ChatMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, sender, body, sent_at FROM chat_messages
		 WHERE user_id = $1 AND companion_name = $2
		 ORDER BY sent_at DESC LIMIT $3`,
		userID, companionName, limit,
	)
	if err != nil {
		slog.Error("PostgresStore.RecentMessages query failed", "error", err, "userID", userID)
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
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// AppendChatMessage stores a message for the pair.
func (s *PostgresStore) AppendChatMessage(userID, companionName string, msg models.ChatMessage) error {
	_, err := s.db.Exec(
		`INSERT INTO chat_messages (id, user_id, companion_name, sender, body, sent_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, userID, companionName, msg.Sender, msg.Body, msg.SentAt,
	)
	if err != nil {
		slog.Error("PostgresStore.AppendChatMessage failed", "error", err, "userID", userID, "companion", companionName)
		return fmt.Errorf("failed to append chat message for %s-%s: %w", userID, companionName, err)
	}
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
