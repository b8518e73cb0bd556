package models

import "errors"

// Error variables for request validation, shared with the HTTP handlers.
var (
	ErrMissingUserID        = errors.New("user_id is required")
	ErrMissingCompanionName = errors.New("companion_name is required")
	ErrMissingActionType    = errors.New("action_type is required")
	ErrInvalidActionType    = errors.New("invalid action_type")
)

// ScheduleRequest is the payload for creating or resetting a schedule.
type ScheduleRequest struct {
	UserID        string `json:"user_id"`
	CompanionName string `json:"companion_name"`
	ResetExisting bool   `json:"reset_existing,omitempty"`
}

// Validate checks the required identification fields.
func (r *ScheduleRequest) Validate() error {
	if r.UserID == "" {
		return ErrMissingUserID
	}
	if r.CompanionName == "" {
		return ErrMissingCompanionName
	}
	return nil
}

// MessageEventRequest is the payload for registering a chat message event.
type MessageEventRequest struct {
	UserID        string `json:"user_id"`
	CompanionName string `json:"companion_name"`
	// IsUserMessage defaults to true when omitted.
	IsUserMessage *bool `json:"is_user_message,omitempty"`
}

// Validate checks the required identification fields.
func (r *MessageEventRequest) Validate() error {
	if r.UserID == "" {
		return ErrMissingUserID
	}
	if r.CompanionName == "" {
		return ErrMissingCompanionName
	}
	return nil
}

// UserMessage reports whether the event is a user message (the default).
func (r *MessageEventRequest) UserMessage() bool {
	return r.IsUserMessage == nil || *r.IsUserMessage
}

// TriggerRequest is the payload for the manual single-action trigger.
type TriggerRequest struct {
	UserID        string `json:"user_id"`
	CompanionName string `json:"companion_name"`
	ActionType    string `json:"action_type"`
}

// Validate checks identification fields and that the action names a slot.
func (r *TriggerRequest) Validate() error {
	if r.UserID == "" {
		return ErrMissingUserID
	}
	if r.CompanionName == "" {
		return ErrMissingCompanionName
	}
	if r.ActionType == "" {
		return ErrMissingActionType
	}
	if !IsValidTimerKind(TimerKind(r.ActionType)) {
		return ErrInvalidActionType
	}
	return nil
}
