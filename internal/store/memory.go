package store

import (
	"sync"
	"time"

	"github.com/amoria-labs/followup/internal/models"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps all state in process memory. Used by tests and as the
// default backend when no database DSN is configured.
type InMemoryStore struct {
	mu         sync.RWMutex
	schedules  map[string]*models.FollowUpSchedule
	companions map[string]models.Companion
	chats      map[string][]models.ChatMessage
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		schedules:  make(map[string]*models.FollowUpSchedule),
		companions: make(map[string]models.Companion),
		chats:      make(map[string][]models.ChatMessage),
	}
}

func pairKey(userID, companionName string) string {
	return userID + "\x00" + companionName
}

// cloneSchedule deep-copies a schedule so callers never share pointers with
// the stored record.
func cloneSchedule(s *models.FollowUpSchedule) *models.FollowUpSchedule {
	out := *s
	for _, kind := range models.TimerKinds {
		src := s.Timers.Slot(kind)
		dst := out.Timers.Slot(kind)
		if src.ScheduledTime != nil {
			at := *src.ScheduledTime
			dst.ScheduledTime = &at
		}
	}
	if s.Conversation.LastUserMessageTime != nil {
		at := *s.Conversation.LastUserMessageTime
		out.Conversation.LastUserMessageTime = &at
	}
	if s.Conversation.LastBotMessageTime != nil {
		at := *s.Conversation.LastBotMessageTime
		out.Conversation.LastBotMessageTime = &at
	}
	return &out
}

// GetSchedule returns the schedule for the pair, or nil if none exists.
func (m *InMemoryStore) GetSchedule(userID, companionName string) (*models.FollowUpSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[pairKey(userID, companionName)]
	if !ok {
		return nil, nil
	}
	return cloneSchedule(s), nil
}

// SaveSchedule inserts or updates the schedule for its pair.
func (m *InMemoryStore) SaveSchedule(s *models.FollowUpSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now()
	m.schedules[pairKey(s.UserID, s.CompanionName)] = cloneSchedule(s)
	return nil
}

// ListDueSchedules returns active schedules with at least one due slot.
func (m *InMemoryStore) ListDueSchedules(now time.Time) ([]*models.FollowUpSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*models.FollowUpSchedule
	for _, s := range m.schedules {
		if !s.TimerState.IsActive {
			continue
		}
		for _, kind := range models.TimerKinds {
			if s.Timers.Slot(kind).Due(now) {
				due = append(due, cloneSchedule(s))
				break
			}
		}
	}
	return due, nil
}

// ListActiveSchedules returns all schedules whose cycle is still running.
func (m *InMemoryStore) ListActiveSchedules() ([]*models.FollowUpSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var active []*models.FollowUpSchedule
	for _, s := range m.schedules {
		if s.TimerState.IsActive {
			active = append(active, cloneSchedule(s))
		}
	}
	return active, nil
}

// GetCompanion returns the companion by name, or nil if not found.
func (m *InMemoryStore) GetCompanion(name string) (*models.Companion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.companions[name]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// SaveCompanion inserts or updates a companion record.
func (m *InMemoryStore) SaveCompanion(c models.Companion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companions[c.Name] = c
	return nil
}

// RecentMessages returns up to limit most recent messages, oldest first.
func (m *InMemoryStore) RecentMessages(userID, companionName string, limit int) ([]models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.chats[pairKey(userID, companionName)]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AppendChatMessage stores a message for the pair.
func (m *InMemoryStore) AppendChatMessage(userID, companionName string, msg models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(userID, companionName)
	m.chats[key] = append(m.chats[key], msg)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *InMemoryStore) Close() error { return nil }
