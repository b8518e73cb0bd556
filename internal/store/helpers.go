package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/amoria-labs/followup/internal/models"
)

// scheduleColumns is the canonical column order shared by both SQL backends.
// scanSchedule and scheduleArgs must stay in sync with it.
const scheduleColumns = `user_id, companion_name,
	twelve_scheduled_at, twelve_completed, twelve_cancelled, twelve_content,
	twenty_four_scheduled_at, twenty_four_completed, twenty_four_cancelled, twenty_four_content,
	thirty_six_scheduled_at, thirty_six_completed, thirty_six_cancelled, thirty_six_content,
	forty_eight_scheduled_at, forty_eight_completed, forty_eight_cancelled, forty_eight_content,
	last_user_message_at, last_bot_message_at, total_user_messages, total_bot_messages, both_have_messaged,
	is_active, last_reset_at, current_cycle, next_action, created_at, updated_at`

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullableTime converts a *time.Time into a driver-friendly nullable value.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// scheduleArgs flattens a schedule into the scheduleColumns order.
func scheduleArgs(s *models.FollowUpSchedule) []interface{} {
	args := []interface{}{s.UserID, s.CompanionName}
	for _, kind := range models.TimerKinds {
		slot := s.Timers.Slot(kind)
		args = append(args,
			nullableTime(slot.ScheduledTime), slot.Completed, slot.Cancelled, nilIfEmpty(slot.Content))
	}
	args = append(args,
		nullableTime(s.Conversation.LastUserMessageTime),
		nullableTime(s.Conversation.LastBotMessageTime),
		s.Conversation.TotalUserMessages,
		s.Conversation.TotalBotMessages,
		s.Conversation.BothHaveMessaged,
		s.TimerState.IsActive,
		s.TimerState.LastResetTime,
		s.TimerState.CurrentCycle,
		s.TimerState.NextScheduledAction,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return args
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSchedule reads one schedule row in scheduleColumns order.
func scanSchedule(r rowScanner) (*models.FollowUpSchedule, error) {
	var s models.FollowUpSchedule
	var slotTimes [4]sql.NullTime
	var slotContents [4]sql.NullString
	var completed, cancelled [4]bool
	var lastUser, lastBot sql.NullTime

	err := r.Scan(
		&s.UserID, &s.CompanionName,
		&slotTimes[0], &completed[0], &cancelled[0], &slotContents[0],
		&slotTimes[1], &completed[1], &cancelled[1], &slotContents[1],
		&slotTimes[2], &completed[2], &cancelled[2], &slotContents[2],
		&slotTimes[3], &completed[3], &cancelled[3], &slotContents[3],
		&lastUser, &lastBot,
		&s.Conversation.TotalUserMessages, &s.Conversation.TotalBotMessages, &s.Conversation.BothHaveMessaged,
		&s.TimerState.IsActive, &s.TimerState.LastResetTime, &s.TimerState.CurrentCycle, &s.TimerState.NextScheduledAction,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan schedule failed: %w", err)
	}

	for i, kind := range models.TimerKinds {
		slot := s.Timers.Slot(kind)
		slot.Completed = completed[i]
		slot.Cancelled = cancelled[i]
		slot.Content = slotContents[i].String
		if slotTimes[i].Valid {
			at := slotTimes[i].Time
			slot.ScheduledTime = &at
		}
	}
	if lastUser.Valid {
		at := lastUser.Time
		s.Conversation.LastUserMessageTime = &at
	}
	if lastBot.Valid {
		at := lastBot.Time
		s.Conversation.LastBotMessageTime = &at
	}
	return &s, nil
}

// scanCompanion reads one companion row.
func scanCompanion(r rowScanner) (*models.Companion, error) {
	var c models.Companion
	var age sql.NullInt64
	var bio, image sql.NullString
	if err := r.Scan(&c.Name, &c.Personality, &age, &bio, &image, &c.IsActive); err != nil {
		return nil, err
	}
	c.Age = int(age.Int64)
	c.Bio = bio.String
	c.Image = image.String
	return &c, nil
}

// collectSchedules drains a schedule result set.
func collectSchedules(rows *sql.Rows) ([]*models.FollowUpSchedule, error) {
	defer rows.Close()
	var out []*models.FollowUpSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule rows failed: %w", err)
	}
	return out, nil
}
