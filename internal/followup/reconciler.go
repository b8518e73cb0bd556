package followup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amoria-labs/followup/internal/models"
)

// ReconcileOverdueTimers runs once at process startup. Any pending timer
// whose fire time passed more than the grace threshold ago while the process
// was down is cancelled: firing dozens of stale actions in a burst after
// extended downtime would be worse than skipping them. Running it twice in a
// row cancels nothing new.
func (s *Service) ReconcileOverdueTimers(ctx context.Context) error {
	now := s.now()
	schedules, err := s.store.ListActiveSchedules()
	if err != nil {
		return fmt.Errorf("list active schedules: %w", err)
	}

	cancelled := 0
	for _, sched := range schedules {
		changed := false
		for _, kind := range models.TimerKinds {
			slot := sched.Timers.Slot(kind)
			if !slot.Overdue(now, s.grace) {
				continue
			}
			slot.Cancelled = true
			changed = true
			cancelled++
			slog.Info("Service.ReconcileOverdueTimers: cancelled stale timer",
				"action", string(kind), "userID", sched.UserID, "companion", sched.CompanionName,
				"scheduledAt", slot.ScheduledTime)
		}
		if !changed {
			continue
		}
		if err := s.store.SaveSchedule(sched); err != nil {
			slog.Error("Service.ReconcileOverdueTimers: save failed",
				"error", err, "userID", sched.UserID, "companion", sched.CompanionName)
		}
	}

	slog.Info("Service.ReconcileOverdueTimers: reconciliation complete",
		"active", len(schedules), "cancelled", cancelled)
	return nil
}
