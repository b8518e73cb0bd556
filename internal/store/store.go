// Package store provides storage backends for the follow-up engine.
//
// It persists follow-up schedules, the companion directory, and chat
// transcripts. Backends exist for SQLite, PostgreSQL, and an in-memory map
// used by tests and as a fallback when no DSN is configured.
package store

import (
	"strings"
	"time"

	"github.com/amoria-labs/followup/internal/models"
)

// ScheduleRepo persists follow-up schedules.
type ScheduleRepo interface {
	// GetSchedule returns the schedule for the pair, or nil if none exists.
	GetSchedule(userID, companionName string) (*models.FollowUpSchedule, error)

	// SaveSchedule inserts or updates the schedule for its pair.
	SaveSchedule(s *models.FollowUpSchedule) error

	// ListDueSchedules returns active schedules with at least one slot whose
	// scheduled time has passed and which is neither completed nor cancelled.
	ListDueSchedules(now time.Time) ([]*models.FollowUpSchedule, error)

	// ListActiveSchedules returns all schedules whose cycle is still running.
	ListActiveSchedules() ([]*models.FollowUpSchedule, error)
}

// CompanionRepo is the companion-directory lookup.
type CompanionRepo interface {
	// GetCompanion returns the companion by name, or nil if not found.
	GetCompanion(name string) (*models.Companion, error)

	// SaveCompanion inserts or updates a companion record.
	SaveCompanion(c models.Companion) error
}

// ChatRepo reads and appends user-companion chat transcripts.
type ChatRepo interface {
	// RecentMessages returns up to limit most recent messages for the pair,
	// in chronological order.
	RecentMessages(userID, companionName string, limit int) ([]models.ChatMessage, error)

	// AppendChatMessage durably stores a message for the pair. This is how a
	// follow-up message becomes visible to the user.
	AppendChatMessage(userID, companionName string, msg models.ChatMessage) error
}

// Store combines the repositories backing the follow-up engine.
type Store interface {
	ScheduleRepo
	CompanionRepo
	ChatRepo

	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithDSN sets the database DSN (file path for SQLite, URL for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType determines whether a DSN refers to PostgreSQL or SQLite.
// Anything that is not recognizably Postgres is treated as a SQLite path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore creates a store backend based on the configured DSN. An empty DSN
// yields the in-memory store.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
