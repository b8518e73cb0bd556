package followup

import (
	"context"
	"log/slog"
	"time"

	"github.com/amoria-labs/followup/internal/models"
)

// ProcessDueSchedules runs one sweep of the due-action processor: it finds
// every active schedule with at least one due timer and executes the
// corresponding actions. Errors in one schedule never abort the others.
func (s *Service) ProcessDueSchedules(ctx context.Context) {
	now := s.now()
	schedules, err := s.store.ListDueSchedules(now)
	if err != nil {
		slog.Error("Service.ProcessDueSchedules: due query failed", "error", err)
		return
	}
	if len(schedules) == 0 {
		return
	}
	slog.Debug("Service.ProcessDueSchedules: sweep", "due", len(schedules))

	for _, sched := range schedules {
		if err := s.processSchedule(ctx, sched, now); err != nil {
			slog.Error("Service.ProcessDueSchedules: schedule processing failed",
				"error", err, "userID", sched.UserID, "companion", sched.CompanionName)
		}
	}
}

// processSchedule executes every due slot for one schedule in fixed order
// (12h, 24h, 36h, 48h) and persists the result once at the end. A slot whose
// executor fails is left pending so the next sweep retries it; later slots
// are still evaluated.
func (s *Service) processSchedule(ctx context.Context, sched *models.FollowUpSchedule, now time.Time) error {
	changed := false
	for _, kind := range models.TimerKinds {
		// The gate is re-checked here even though gated slots should never
		// have fire times while the flag is false.
		if kind.RequiresBothMessaged() && !sched.Conversation.BothHaveMessaged {
			continue
		}
		slot := sched.Timers.Slot(kind)
		if !slot.Due(now) {
			continue
		}

		if err := s.executeAction(ctx, sched, kind); err != nil {
			slog.Error("Service.processSchedule: action failed, slot left pending",
				"error", err, "action", string(kind),
				"userID", sched.UserID, "companion", sched.CompanionName)
			continue
		}
		slot.Completed = true
		s.advanceNextAction(sched, kind)
		changed = true
	}

	if !changed {
		return nil
	}
	return s.store.SaveSchedule(sched)
}

// advanceNextAction updates the informational next-action marker, and ends
// the cycle once no further timer can fire.
func (s *Service) advanceNextAction(sched *models.FollowUpSchedule, completed models.TimerKind) {
	switch completed {
	case models.TimerTwelveHourReflection:
		sched.TimerState.NextScheduledAction = string(models.TimerTwentyFourHourMessage)
	case models.TimerTwentyFourHourMessage:
		if sched.Conversation.BothHaveMessaged {
			sched.TimerState.NextScheduledAction = string(models.TimerThirtySixHourReflection)
		} else {
			// The gated slots can never fire in this cycle. End it instead
			// of leaving a permanently idle active schedule.
			sched.TimerState.NextScheduledAction = models.ActionNone
			sched.TimerState.IsActive = false
		}
	case models.TimerThirtySixHourReflection:
		sched.TimerState.NextScheduledAction = string(models.TimerFortyEightHourMessage)
	case models.TimerFortyEightHourMessage:
		sched.TimerState.NextScheduledAction = models.ActionNone
		sched.TimerState.IsActive = false
	}
}
