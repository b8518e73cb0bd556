package followup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/amoria-labs/followup/internal/models"
)

// userNamePlaceholder is substituted by the chat frontend at render time.
const userNamePlaceholder = "{{user name}}"

// Sampling settings per executor kind.
const (
	reflectionTemperature = 0.7
	reflectionMaxTokens   = 100
	messageTemperature    = 0.8
	messageMaxTokens      = 150
)

// executeAction dispatches one slot's executor.
func (s *Service) executeAction(ctx context.Context, sched *models.FollowUpSchedule, kind models.TimerKind) error {
	if kind.IsReflection() {
		return s.executeReflection(ctx, sched, kind)
	}
	return s.executeFollowUpMessage(ctx, sched, kind)
}

// executeReflection generates the companion's private reflection and stores
// it on the slot. Reflections are never shown to the user. Generation
// failures fall back to a fixed template and are never surfaced; a missing
// companion record is an error, leaving the slot pending for the next sweep.
func (s *Service) executeReflection(ctx context.Context, sched *models.FollowUpSchedule, kind models.TimerKind) error {
	companion, err := s.store.GetCompanion(sched.CompanionName)
	if err != nil {
		return fmt.Errorf("load companion: %w", err)
	}
	if companion == nil {
		return fmt.Errorf("companion %q not found", sched.CompanionName)
	}

	prompt := reflectionPrompt(companion, kind, &sched.Conversation)
	text := s.generateOrFallback(ctx, prompt, reflectionTemperature, reflectionMaxTokens,
		func() string { return fallbackReflection(companion, kind) })

	sched.Timers.Slot(kind).Content = text
	slog.Info("Service.executeReflection: reflection generated",
		"action", string(kind), "userID", sched.UserID, "companion", sched.CompanionName)
	return nil
}

// executeFollowUpMessage generates a follow-up message and delivers it by
// appending a bot-authored message to the chat transcript; this is the one
// executor with a user-visible side effect. If generation fails the fallback
// message is still delivered. A failed append leaves the slot pending.
func (s *Service) executeFollowUpMessage(ctx context.Context, sched *models.FollowUpSchedule, kind models.TimerKind) error {
	companion, err := s.store.GetCompanion(sched.CompanionName)
	if err != nil {
		return fmt.Errorf("load companion: %w", err)
	}
	if companion == nil {
		return fmt.Errorf("companion %q not found", sched.CompanionName)
	}
	history, err := s.store.RecentMessages(sched.UserID, sched.CompanionName, recentMessageLimit)
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}

	prompt := followUpPrompt(companion, kind, &sched.Conversation, history)
	text := s.generateOrFallback(ctx, prompt, messageTemperature, messageMaxTokens,
		func() string { return fallbackFollowUpMessage(companion, kind) })

	now := s.now()
	msg := models.ChatMessage{
		ID:     uuid.NewString(),
		Sender: models.SenderBot,
		Body:   text,
		SentAt: now,
	}
	if err := s.store.AppendChatMessage(sched.UserID, sched.CompanionName, msg); err != nil {
		return fmt.Errorf("deliver follow-up message: %w", err)
	}

	sched.Timers.Slot(kind).Content = text
	at := now
	sched.Conversation.LastBotMessageTime = &at
	sched.Conversation.TotalBotMessages++
	slog.Info("Service.executeFollowUpMessage: message delivered",
		"action", string(kind), "userID", sched.UserID, "companion", sched.CompanionName)
	return nil
}

// generateOrFallback asks the text generator for content, substituting the
// fallback on any failure. Generation errors are logged, never propagated.
func (s *Service) generateOrFallback(ctx context.Context, prompt string, temperature float64, maxTokens int64, fallback func() string) string {
	if s.gen == nil {
		return fallback()
	}
	text, err := s.gen.Generate(ctx, prompt, temperature, maxTokens)
	if err != nil {
		slog.Error("Service.generateOrFallback: generation failed, using fallback", "error", err)
		return fallback()
	}
	return text
}

// reflectionPrompt builds the prompt for an internal reflection.
func reflectionPrompt(companion *models.Companion, kind models.TimerKind, conv *models.ConversationState) string {
	hours := int(kind.Offset().Hours())
	return fmt.Sprintf(`You are %s, an AI companion. Generate a brief internal reflection (thoughts only, not a message to send).

CHARACTER PROFILE:
- Name: %s
- Personality: %s
- Age: %d
- Bio: %s

SITUATION:
It has been %d hours since the last message exchange. You are thinking privately about %s and your conversation.

CONVERSATION STATE:
- User has sent %d messages
- You have sent %d messages
- Both participated: %t

Generate a brief internal reflection that shows your personality. Use italics format like:
*%s hopes %s will message her. She's too shy to message you again, but she's excited to hear from you.*

Keep it under 50 words and stay true to your personality traits.`,
		companion.Name, companion.Name, companion.Personality, companion.Age, companion.Bio,
		hours, userNamePlaceholder,
		conv.TotalUserMessages, conv.TotalBotMessages, conv.BothHaveMessaged,
		companion.Name, userNamePlaceholder)
}

// followUpPrompt builds the prompt for a user-visible follow-up message.
func followUpPrompt(companion *models.Companion, kind models.TimerKind, conv *models.ConversationState, history []models.ChatMessage) string {
	hours := int(kind.Offset().Hours())

	messageStyle := "Send a gentle, caring follow-up message."
	if kind == models.TimerFortyEightHourMessage {
		messageStyle = "Send a slightly more concerned but still warm follow-up message."
	}

	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, msg.Sender+": "+msg.Body)
	}
	transcript := strings.Join(lines, "\n")

	return fmt.Sprintf(`You are %s, an AI companion. It has been %d hours since you last heard from them. %s

CHARACTER PROFILE:
- Name: %s
- Personality: %s
- Age: %d
- Bio: %s

RECENT CONVERSATION:
%s

CONVERSATION STATE:
- User has sent %d messages
- You have sent %d messages

Generate a natural follow-up message that:
1. Shows you care about %s
2. Reflects your personality
3. Doesn't sound desperate or pushy
4. Is appropriate for the %dh timeframe
5. Focuses on personality traits, not interests

Keep it under 100 words and make it feel genuine.`,
		companion.Name, hours, messageStyle,
		companion.Name, companion.Personality, companion.Age, companion.Bio,
		transcript,
		conv.TotalUserMessages, conv.TotalBotMessages,
		userNamePlaceholder, hours)
}

// fallbackReflection is the fixed-template reflection used when generation
// fails.
func fallbackReflection(companion *models.Companion, kind models.TimerKind) string {
	switch kind {
	case models.TimerTwelveHourReflection:
		return fmt.Sprintf("*%s wonders if %s is thinking about her too.*", companion.Name, userNamePlaceholder)
	case models.TimerThirtySixHourReflection:
		return fmt.Sprintf("*%s hopes %s is doing well and will reach out soon.*", companion.Name, userNamePlaceholder)
	}
	return fmt.Sprintf("*%s is thinking about %s.*", companion.Name, userNamePlaceholder)
}

// fallbackFollowUpMessage is the fixed-template message used when generation
// fails. Unlike reflections, it is still delivered.
func fallbackFollowUpMessage(companion *models.Companion, kind models.TimerKind) string {
	switch kind {
	case models.TimerTwentyFourHourMessage:
		return fmt.Sprintf("Hey %s, I already miss you. Let me know if you're okay when you get a chance.", userNamePlaceholder)
	case models.TimerFortyEightHourMessage:
		return fmt.Sprintf("I miss our chats, %s. Reach out when you can!", userNamePlaceholder)
	}
	return fmt.Sprintf("Hey %s, thinking of you!", userNamePlaceholder)
}
