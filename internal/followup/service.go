// Package followup implements the follow-up scheduling engine: the schedule
// lifecycle API, the per-minute due-action processor, the startup timer
// reconciler, and the reflection and message executors.
package followup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amoria-labs/followup/internal/genai"
	"github.com/amoria-labs/followup/internal/models"
	"github.com/amoria-labs/followup/internal/store"
)

// DefaultGraceThreshold is how far past its fire time a timer may be before
// the reconciler treats it as stale and cancels it.
const DefaultGraceThreshold = time.Hour

// recentMessageLimit is how many transcript turns feed the message prompt.
const recentMessageLimit = 5

// ErrScheduleNotFound is returned by operations that require an existing
// schedule.
var ErrScheduleNotFound = errors.New("follow-up schedule not found")

// Service coordinates follow-up schedules for user-companion pairs. It is
// constructed once at process startup with its collaborators injected and
// holds no global state. Running more than one instance against the same
// store is unsafe: timers may double-fire.
type Service struct {
	store store.Store
	gen   genai.TextGenerator // nil means fallback templates only
	grace time.Duration
	now   func() time.Time
}

// Option defines a configuration option for the service.
type Option func(*Service)

// WithGraceThreshold overrides the reconciler's stale-timer threshold.
func WithGraceThreshold(d time.Duration) Option {
	return func(s *Service) { s.grace = d }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a follow-up service. gen may be nil, in which case all
// generated content uses the fallback templates.
func NewService(st store.Store, gen genai.TextGenerator, opts ...Option) *Service {
	s := &Service{
		store: st,
		gen:   gen,
		grace: DefaultGraceThreshold,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrResetSchedule creates a schedule for the pair if none exists, or
// resets the existing one when resetExisting is true. After a create or
// reset, fire times for all slots are derived from now. An existing schedule
// without resetExisting is returned untouched so pending timers keep their
// original fire times.
func (s *Service) CreateOrResetSchedule(ctx context.Context, userID, companionName string, resetExisting bool) (*models.FollowUpSchedule, error) {
	if err := validatePair(userID, companionName); err != nil {
		return nil, err
	}
	now := s.now()

	sched, err := s.store.GetSchedule(userID, companionName)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	switch {
	case sched == nil:
		sched = models.NewFollowUpSchedule(userID, companionName, now)
		sched.ScheduleTimers(now)
	case resetExisting:
		sched.ResetCycle(now)
		sched.ScheduleTimers(now)
	default:
		return sched, nil
	}

	if err := s.store.SaveSchedule(sched); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	slog.Info("Service.CreateOrResetSchedule: schedule ready",
		"userID", userID, "companion", companionName, "cycle", sched.TimerState.CurrentCycle)
	return sched, nil
}

// RegisterMessageEvent records a chat message for the pair, creating the
// schedule if needed. A user message restarts the follow-up sequence: the
// cycle is reset and all slots are rescheduled from now. A bot message only
// updates the conversation counters; if it makes the both-parties flag true,
// the gated 36h/48h slots become schedulable relative to the cycle's reset
// time.
func (s *Service) RegisterMessageEvent(ctx context.Context, userID, companionName string, isUserMessage bool) (*models.FollowUpSchedule, error) {
	if err := validatePair(userID, companionName); err != nil {
		return nil, err
	}
	now := s.now()

	sched, err := s.store.GetSchedule(userID, companionName)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	created := sched == nil
	if created {
		sched = models.NewFollowUpSchedule(userID, companionName, now)
	} else if isUserMessage {
		sched.ResetCycle(now)
	}

	at := now
	if isUserMessage {
		sched.Conversation.LastUserMessageTime = &at
		sched.Conversation.TotalUserMessages++
	} else {
		sched.Conversation.LastBotMessageTime = &at
		sched.Conversation.TotalBotMessages++
	}
	sched.Conversation.RecomputeBothMessaged()

	if created || isUserMessage {
		sched.ScheduleTimers(now)
	} else {
		sched.BackfillGatedTimers()
	}

	if err := s.store.SaveSchedule(sched); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	slog.Debug("Service.RegisterMessageEvent: recorded",
		"userID", userID, "companion", companionName,
		"userMessage", isUserMessage, "cycle", sched.TimerState.CurrentCycle,
		"bothMessaged", sched.Conversation.BothHaveMessaged)
	return sched, nil
}

// Status returns the read-only projection of the pair's schedule. It never
// mutates the schedule.
func (s *Service) Status(ctx context.Context, userID, companionName string) (*models.FollowUpStatus, error) {
	if err := validatePair(userID, companionName); err != nil {
		return nil, err
	}
	sched, err := s.store.GetSchedule(userID, companionName)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if sched == nil {
		return &models.FollowUpStatus{Exists: false}, nil
	}
	return sched.StatusView(), nil
}

// ActiveSchedules returns all schedules whose cycle is still running.
func (s *Service) ActiveSchedules(ctx context.Context) ([]*models.FollowUpSchedule, error) {
	return s.store.ListActiveSchedules()
}

// TriggerAction immediately runs one slot's executor for the pair, bypassing
// the poll loop. Timer bookkeeping (completion flags, next action) is left
// untouched; only produced content and delivery side effects are persisted.
// Intended for non-production testing.
func (s *Service) TriggerAction(ctx context.Context, userID, companionName string, kind models.TimerKind) error {
	if err := validatePair(userID, companionName); err != nil {
		return err
	}
	if !models.IsValidTimerKind(kind) {
		return models.ErrInvalidActionType
	}
	sched, err := s.store.GetSchedule(userID, companionName)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	if sched == nil {
		return ErrScheduleNotFound
	}
	if err := s.executeAction(ctx, sched, kind); err != nil {
		return err
	}
	return s.store.SaveSchedule(sched)
}

func validatePair(userID, companionName string) error {
	if userID == "" {
		return models.ErrMissingUserID
	}
	if companionName == "" {
		return models.ErrMissingCompanionName
	}
	return nil
}
