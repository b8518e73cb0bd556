// Package models defines the core data structures for the follow-up engine.
//
// It includes the per user-companion follow-up schedule, the closed set of
// timer kinds, and the collaborator records (companions, chat transcripts)
// shared across modules.
package models

import (
	"time"
)

// TimerKind identifies one of the four timer slots within a schedule.
type TimerKind string

const (
	// TimerTwelveHourReflection generates a private reflection 12h after reset.
	TimerTwelveHourReflection TimerKind = "12h_reflection"
	// TimerTwentyFourHourMessage delivers a follow-up message 24h after reset.
	TimerTwentyFourHourMessage TimerKind = "24h_message"
	// TimerThirtySixHourReflection generates a private reflection 36h after
	// reset, only once both parties have messaged.
	TimerThirtySixHourReflection TimerKind = "36h_reflection"
	// TimerFortyEightHourMessage delivers the terminal follow-up message 48h
	// after reset, only once both parties have messaged.
	TimerFortyEightHourMessage TimerKind = "48h_message"
)

// ActionNone marks a schedule with no further scheduled action.
const ActionNone = "none"

// TimerKinds lists every timer kind in execution order. The processor relies
// on this order so that earlier-stage actions are recorded before later ones
// when several slots become due in the same sweep.
var TimerKinds = [4]TimerKind{
	TimerTwelveHourReflection,
	TimerTwentyFourHourMessage,
	TimerThirtySixHourReflection,
	TimerFortyEightHourMessage,
}

// IsValidTimerKind checks whether the given kind is one of the four slots.
func IsValidTimerKind(k TimerKind) bool {
	switch k {
	case TimerTwelveHourReflection, TimerTwentyFourHourMessage,
		TimerThirtySixHourReflection, TimerFortyEightHourMessage:
		return true
	default:
		return false
	}
}

// Offset returns the kind's fire time relative to the cycle reset.
func (k TimerKind) Offset() time.Duration {
	switch k {
	case TimerTwelveHourReflection:
		return 12 * time.Hour
	case TimerTwentyFourHourMessage:
		return 24 * time.Hour
	case TimerThirtySixHourReflection:
		return 36 * time.Hour
	case TimerFortyEightHourMessage:
		return 48 * time.Hour
	}
	return 0
}

// RequiresBothMessaged reports whether the kind only fires after both the
// user and the companion have messaged in the current cycle.
func (k TimerKind) RequiresBothMessaged() bool {
	return k == TimerThirtySixHourReflection || k == TimerFortyEightHourMessage
}

// IsReflection reports whether the kind produces an internal reflection
// rather than a user-visible message.
func (k TimerKind) IsReflection() bool {
	return k == TimerTwelveHourReflection || k == TimerThirtySixHourReflection
}

// TimerSlot holds the persisted state of a single timer.
//
// A slot transitions pending -> completed or pending -> cancelled, never
// both and never back.
type TimerSlot struct {
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	Completed     bool       `json:"completed"`
	Cancelled     bool       `json:"cancelled"`
	// Content is the reflection or message text once produced, kept for audit.
	Content string `json:"content,omitempty"`
}

// Pending reports whether the slot is neither completed nor cancelled.
func (s *TimerSlot) Pending() bool {
	return !s.Completed && !s.Cancelled
}

// Due reports whether the slot should fire at the given time.
func (s *TimerSlot) Due(now time.Time) bool {
	return s.ScheduledTime != nil && !s.ScheduledTime.After(now) && s.Pending()
}

// Overdue reports whether the slot's fire time passed more than grace ago.
func (s *TimerSlot) Overdue(now time.Time, grace time.Duration) bool {
	return s.ScheduledTime != nil && s.Pending() && now.Sub(*s.ScheduledTime) > grace
}

// Timers holds the four timer slots of a schedule.
type Timers struct {
	TwelveHourReflection    TimerSlot `json:"twelve_hour_reflection"`
	TwentyFourHourMessage   TimerSlot `json:"twenty_four_hour_message"`
	ThirtySixHourReflection TimerSlot `json:"thirty_six_hour_reflection"`
	FortyEightHourMessage   TimerSlot `json:"forty_eight_hour_message"`
}

// Slot returns the slot for the given kind, or nil for an unknown kind.
func (t *Timers) Slot(kind TimerKind) *TimerSlot {
	switch kind {
	case TimerTwelveHourReflection:
		return &t.TwelveHourReflection
	case TimerTwentyFourHourMessage:
		return &t.TwentyFourHourMessage
	case TimerThirtySixHourReflection:
		return &t.ThirtySixHourReflection
	case TimerFortyEightHourMessage:
		return &t.FortyEightHourMessage
	}
	return nil
}

// ConversationState tracks message activity within the current cycle.
type ConversationState struct {
	LastUserMessageTime *time.Time `json:"last_user_message_time,omitempty"`
	LastBotMessageTime  *time.Time `json:"last_bot_message_time,omitempty"`
	TotalUserMessages   int        `json:"total_user_messages"`
	TotalBotMessages    int        `json:"total_bot_messages"`
	BothHaveMessaged    bool       `json:"both_have_messaged"`
}

// RecomputeBothMessaged re-derives the both-parties flag from the counters.
func (c *ConversationState) RecomputeBothMessaged() {
	c.BothHaveMessaged = c.TotalUserMessages > 0 && c.TotalBotMessages > 0
}

// TimerState tracks the lifecycle of the current cycle.
type TimerState struct {
	IsActive      bool      `json:"is_active"`
	LastResetTime time.Time `json:"last_reset_time"`
	CurrentCycle  int       `json:"current_cycle"`
	// NextScheduledAction is informational only; the processor derives what
	// to run from the slots themselves.
	NextScheduledAction string `json:"next_scheduled_action"`
}

// FollowUpSchedule is the persisted follow-up timer record for one
// user-companion pair. At most one schedule exists per pair; the record is
// kept after the cycle ends rather than deleted.
type FollowUpSchedule struct {
	UserID        string            `json:"user_id"`
	CompanionName string            `json:"companion_name"`
	Timers        Timers            `json:"timers"`
	Conversation  ConversationState `json:"conversation_state"`
	TimerState    TimerState        `json:"timer_state"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewFollowUpSchedule creates a schedule in its default state: all slots
// unset, first cycle active, next action pointing at the 12h reflection.
func NewFollowUpSchedule(userID, companionName string, now time.Time) *FollowUpSchedule {
	return &FollowUpSchedule{
		UserID:        userID,
		CompanionName: companionName,
		TimerState: TimerState{
			IsActive:            true,
			LastResetTime:       now,
			CurrentCycle:        1,
			NextScheduledAction: string(TimerTwelveHourReflection),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResetCycle starts a fresh cycle at now. Pending timers are superseded
// wholesale: the new cycle begins with fresh slots, which also clears any
// produced content, and the per-cycle conversation counters start over.
// CurrentCycle strictly increases.
func (s *FollowUpSchedule) ResetCycle(now time.Time) {
	s.Timers = Timers{}
	s.TimerState.IsActive = true
	s.TimerState.LastResetTime = now
	s.TimerState.CurrentCycle++
	s.TimerState.NextScheduledAction = string(TimerTwelveHourReflection)
	s.Conversation.TotalUserMessages = 0
	s.Conversation.TotalBotMessages = 0
	s.Conversation.BothHaveMessaged = false
}

// ScheduleTimers derives fire times for the slots relative to base. Gated
// slots stay unscheduled until both parties have messaged.
func (s *FollowUpSchedule) ScheduleTimers(base time.Time) {
	for _, kind := range TimerKinds {
		if kind.RequiresBothMessaged() && !s.Conversation.BothHaveMessaged {
			continue
		}
		at := base.Add(kind.Offset())
		s.Timers.Slot(kind).ScheduledTime = &at
	}
}

// BackfillGatedTimers schedules the gated slots relative to the cycle's
// reset time once both parties have messaged mid-cycle. Slots that are
// already scheduled, completed, or cancelled are left alone.
func (s *FollowUpSchedule) BackfillGatedTimers() {
	if !s.Conversation.BothHaveMessaged || !s.TimerState.IsActive {
		return
	}
	for _, kind := range TimerKinds {
		if !kind.RequiresBothMessaged() {
			continue
		}
		slot := s.Timers.Slot(kind)
		if slot.ScheduledTime != nil || !slot.Pending() {
			continue
		}
		at := s.TimerState.LastResetTime.Add(kind.Offset())
		slot.ScheduledTime = &at
	}
}

// HasPendingWork reports whether any slot can still fire in this cycle.
// Gated slots do not count while the both-parties flag is false.
func (s *FollowUpSchedule) HasPendingWork() bool {
	for _, kind := range TimerKinds {
		slot := s.Timers.Slot(kind)
		if slot.ScheduledTime == nil || !slot.Pending() {
			continue
		}
		if kind.RequiresBothMessaged() && !s.Conversation.BothHaveMessaged {
			continue
		}
		return true
	}
	return false
}

// Sender values for chat messages.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Companion is a persona record from the companion directory.
type Companion struct {
	Name        string `json:"name"`
	Personality string `json:"personality"`
	Age         int    `json:"age,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Image       string `json:"image,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// ChatMessage is one message in a user-companion chat transcript.
type ChatMessage struct {
	ID     string    `json:"id"`
	Sender string    `json:"sender"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// TimerStatus is the read-only projection of one slot for status queries.
type TimerStatus struct {
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	Completed     bool       `json:"completed"`
	Cancelled     bool       `json:"cancelled"`
}

// FollowUpStatus is the read-only projection of a schedule.
type FollowUpStatus struct {
	Exists       bool                   `json:"exists"`
	IsActive     bool                   `json:"is_active,omitempty"`
	NextAction   string                 `json:"next_action,omitempty"`
	Cycle        int                    `json:"cycle,omitempty"`
	Conversation *ConversationState     `json:"conversation_state,omitempty"`
	Timers       map[string]TimerStatus `json:"timers,omitempty"`
}

// StatusView builds the read-only projection of the schedule.
func (s *FollowUpSchedule) StatusView() *FollowUpStatus {
	conv := s.Conversation
	status := &FollowUpStatus{
		Exists:       true,
		IsActive:     s.TimerState.IsActive,
		NextAction:   s.TimerState.NextScheduledAction,
		Cycle:        s.TimerState.CurrentCycle,
		Conversation: &conv,
		Timers:       make(map[string]TimerStatus, len(TimerKinds)),
	}
	for _, kind := range TimerKinds {
		slot := s.Timers.Slot(kind)
		status.Timers[string(kind)] = TimerStatus{
			ScheduledTime: slot.ScheduledTime,
			Completed:     slot.Completed,
			Cancelled:     slot.Cancelled,
		}
	}
	return status
}
