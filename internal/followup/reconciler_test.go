package followup

import (
	"context"
	"testing"
	"time"

	"github.com/amoria-labs/followup/internal/models"
)

func TestReconcilerCancelsStaleTimers(t *testing.T) {
	svc, st, clock := newTestService(t, &fakeGen{text: "x"})
	ctx := context.Background()

	if _, err := svc.RegisterMessageEvent(ctx, "u1", "Luna", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Simulated downtime: the 12h timer is now 2h past its fire time, the
	// 24h timer has not fired yet.
	clock.Advance(14 * time.Hour)
	if err := svc.ReconcileOverdueTimers(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sched, _ := st.GetSchedule("u1", "Luna")
	if !sched.Timers.TwelveHourReflection.Cancelled {
		t.Error("12h timer 2h past its fire time should be cancelled")
	}
	if sched.Timers.TwelveHourReflection.Completed {
		t.Error("reconciler must cancel, never complete")
	}
	if sched.Timers.TwentyFourHourMessage.Cancelled {
		t.Error("future 24h timer must be left alone")
	}

	// The cancelled slot never fires.
	svc.ProcessDueSchedules(ctx)
	sched, _ = st.GetSchedule("u1", "Luna")
	if sched.Timers.TwelveHourReflection.Completed {
		t.Error("cancelled slot fired anyway")
	}
}

func TestReconcilerRespectsGraceWindow(t *testing.T) {
	svc, st, clock := newTestService(t, &fakeGen{text: "x"})
	ctx := context.Background()

	if _, err := svc.RegisterMessageEvent(ctx, "u1", "Luna", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 30 minutes late is within the default 1h grace window.
	clock.Advance(12*time.Hour + 30*time.Minute)
	if err := svc.ReconcileOverdueTimers(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched, _ := st.GetSchedule("u1", "Luna")
	if sched.Timers.TwelveHourReflection.Cancelled {
		t.Error("timer within the grace window should not be cancelled")
	}

	// It remains eligible for the normal sweep.
	svc.ProcessDueSchedules(ctx)
	sched, _ = st.GetSchedule("u1", "Luna")
	if !sched.Timers.TwelveHourReflection.Completed {
		t.Error("timer within the grace window should fire normally")
	}
}

func TestReconcilerIsIdempotent(t *testing.T) {
	svc, st, clock := newTestService(t, &fakeGen{text: "x"})
	ctx := context.Background()

	if _, err := svc.RegisterMessageEvent(ctx, "u1", "Luna", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(14 * time.Hour)
	if err := svc.ReconcileOverdueTimers(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, _ := st.GetSchedule("u1", "Luna")

	if err := svc.ReconcileOverdueTimers(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := st.GetSchedule("u1", "Luna")
	for _, kind := range models.TimerKinds {
		a, b := first.Timers.Slot(kind), second.Timers.Slot(kind)
		if a.Cancelled != b.Cancelled || a.Completed != b.Completed {
			t.Errorf("slot %s changed on second reconciliation", kind)
		}
	}
}

func TestReconcilerCustomGrace(t *testing.T) {
	svc, st, clock := newTestService(t, &fakeGen{text: "x"})
	svc.grace = 10 * time.Minute
	ctx := context.Background()

	if _, err := svc.RegisterMessageEvent(ctx, "u1", "Luna", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(12*time.Hour + 30*time.Minute)
	if err := svc.ReconcileOverdueTimers(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched, _ := st.GetSchedule("u1", "Luna")
	if !sched.Timers.TwelveHourReflection.Cancelled {
		t.Error("timer past a tightened grace window should be cancelled")
	}
}
