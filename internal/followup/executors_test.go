package followup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/amoria-labs/followup/internal/models"
)

func TestReflectionPromptContents(t *testing.T) {
	companion := &models.Companion{Name: "Luna", Personality: "shy, caring", Age: 23, Bio: "Loves stargazing."}
	conv := &models.ConversationState{TotalUserMessages: 2, TotalBotMessages: 1, BothHaveMessaged: true}

	prompt := reflectionPrompt(companion, models.TimerThirtySixHourReflection, conv)
	for _, want := range []string{
		"You are Luna",
		"Personality: shy, caring",
		"It has been 36 hours",
		"User has sent 2 messages",
		userNamePlaceholder,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("reflection prompt missing %q", want)
		}
	}
}

func TestFollowUpPromptContents(t *testing.T) {
	companion := &models.Companion{Name: "Luna", Personality: "shy, caring"}
	conv := &models.ConversationState{TotalUserMessages: 1}
	history := []models.ChatMessage{
		{Sender: models.SenderUser, Body: "hi there"},
		{Sender: models.SenderBot, Body: "hello!"},
	}

	prompt := followUpPrompt(companion, models.TimerTwentyFourHourMessage, conv, history)
	for _, want := range []string{
		"It has been 24 hours",
		"user: hi there",
		"bot: hello!",
		"gentle, caring follow-up",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("follow-up prompt missing %q", want)
		}
	}

	// The 48h prompt escalates tone.
	prompt48 := followUpPrompt(companion, models.TimerFortyEightHourMessage, conv, nil)
	if !strings.Contains(prompt48, "more concerned") {
		t.Error("48h prompt should use the concerned style")
	}
}

func TestFallbackTemplates(t *testing.T) {
	companion := &models.Companion{Name: "Luna"}

	r12 := fallbackReflection(companion, models.TimerTwelveHourReflection)
	if !strings.HasPrefix(r12, "*Luna wonders") || !strings.Contains(r12, userNamePlaceholder) {
		t.Errorf("unexpected 12h fallback: %q", r12)
	}
	r36 := fallbackReflection(companion, models.TimerThirtySixHourReflection)
	if !strings.Contains(r36, "hopes") {
		t.Errorf("unexpected 36h fallback: %q", r36)
	}

	m24 := fallbackFollowUpMessage(companion, models.TimerTwentyFourHourMessage)
	if !strings.Contains(m24, "already miss you") {
		t.Errorf("unexpected 24h fallback: %q", m24)
	}
	m48 := fallbackFollowUpMessage(companion, models.TimerFortyEightHourMessage)
	if !strings.Contains(m48, "miss our chats") {
		t.Errorf("unexpected 48h fallback: %q", m48)
	}
}

func TestGenerateOrFallbackNilGenerator(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	got := svc.generateOrFallback(context.Background(), "prompt", 0.7, 100, func() string { return "fallback" })
	if got != "fallback" {
		t.Errorf("nil generator should yield fallback, got %q", got)
	}
}

func TestGenerateOrFallbackOnError(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeGen{err: errors.New("api down")})
	got := svc.generateOrFallback(context.Background(), "prompt", 0.7, 100, func() string { return "fallback" })
	if got != "fallback" {
		t.Errorf("generator error should yield fallback, got %q", got)
	}
}

func TestExecuteReflectionStoresContent(t *testing.T) {
	svc, _, clock := newTestService(t, &fakeGen{text: "*Luna smiles to herself.*"})
	sched := models.NewFollowUpSchedule("u1", "Luna", clock.Now())

	if err := svc.executeReflection(context.Background(), sched, models.TimerTwelveHourReflection); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sched.Timers.TwelveHourReflection.Content != "*Luna smiles to herself.*" {
		t.Errorf("content = %q", sched.Timers.TwelveHourReflection.Content)
	}
	// Reflections never touch the transcript or the counters.
	if sched.Conversation.TotalBotMessages != 0 {
		t.Error("reflection must not count as a bot message")
	}
}

func TestExecuteFollowUpMessageDeliversAndCounts(t *testing.T) {
	svc, st, clock := newTestService(t, &fakeGen{text: "Hey, I was thinking of you."})
	sched := models.NewFollowUpSchedule("u1", "Luna", clock.Now())
	sched.Conversation.TotalUserMessages = 1
	sched.Conversation.RecomputeBothMessaged()

	if err := svc.executeFollowUpMessage(context.Background(), sched, models.TimerTwentyFourHourMessage); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs, err := st.RecentMessages("u1", "Luna", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Sender != models.SenderBot || msgs[0].Body != "Hey, I was thinking of you." {
		t.Fatalf("delivered message wrong: %+v", msgs)
	}
	if msgs[0].ID == "" {
		t.Error("delivered message needs an ID")
	}
	if sched.Conversation.TotalBotMessages != 1 {
		t.Errorf("TotalBotMessages = %d, want 1", sched.Conversation.TotalBotMessages)
	}
	// Delivery alone does not flip the both-parties flag; only a registered
	// message event recomputes it.
	if sched.Conversation.BothHaveMessaged {
		t.Error("executor must not recompute both_have_messaged")
	}
}

func TestExecuteReflectionMissingCompanion(t *testing.T) {
	svc, _, clock := newTestService(t, &fakeGen{text: "x"})
	sched := models.NewFollowUpSchedule("u1", "Nobody", clock.Now())

	err := svc.executeReflection(context.Background(), sched, models.TimerTwelveHourReflection)
	if err == nil {
		t.Fatal("expected error for missing companion")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("unexpected error: %v", err)
	}
}
