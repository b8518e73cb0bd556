package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/amoria-labs/followup/internal/followup"
	"github.com/amoria-labs/followup/internal/models"
)

// scheduleHandler creates or resets the schedule for a user-companion pair.
func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.scheduleHandler: processing schedule request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.scheduleHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.scheduleHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.scheduleHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	sched, err := s.svc.CreateOrResetSchedule(r.Context(), req.UserID, req.CompanionName, req.ResetExisting)
	if err != nil {
		slog.Error("Server.scheduleHandler: failed to create or reset schedule", "error", err,
			"userID", req.UserID, "companion", req.CompanionName)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create or reset schedule"))
		return
	}

	slog.Info("Server.scheduleHandler: schedule ready",
		"userID", req.UserID, "companion", req.CompanionName, "cycle", sched.TimerState.CurrentCycle)
	writeJSONResponse(w, http.StatusOK, models.ScheduledWithResult("Follow-up schedule ready", sched.StatusView()))
}

// messageEventHandler registers a chat message event for a pair.
func (s *Server) messageEventHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.messageEventHandler: processing message event", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.messageEventHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.MessageEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.messageEventHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.messageEventHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	sched, err := s.svc.RegisterMessageEvent(r.Context(), req.UserID, req.CompanionName, req.UserMessage())
	if err != nil {
		slog.Error("Server.messageEventHandler: failed to register message event", "error", err,
			"userID", req.UserID, "companion", req.CompanionName)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to register message event"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message event registered", sched.StatusView()))
}

// statusHandler returns the read-only schedule projection for a pair.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.statusHandler: processing status request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.statusHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	companionName := r.URL.Query().Get("companion_name")

	status, err := s.svc.Status(r.Context(), userID, companionName)
	if err != nil {
		if errors.Is(err, models.ErrMissingUserID) || errors.Is(err, models.ErrMissingCompanionName) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.statusHandler: failed to load status", "error", err,
			"userID", userID, "companion", companionName)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load schedule status"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(status))
}

// triggerHandler runs one slot's executor immediately. Disabled unless the
// server was started with the trigger option.
func (s *Server) triggerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.triggerHandler: processing trigger request", "method", r.Method, "path", r.URL.Path)
	if !s.enableTrigger {
		slog.Warn("Server.triggerHandler: manual trigger disabled")
		writeJSONResponse(w, http.StatusForbidden, models.Error("Manual trigger is disabled"))
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.triggerHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.triggerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.triggerHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	err := s.svc.TriggerAction(r.Context(), req.UserID, req.CompanionName, models.TimerKind(req.ActionType))
	if err != nil {
		if errors.Is(err, followup.ErrScheduleNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Follow-up schedule not found"))
			return
		}
		slog.Error("Server.triggerHandler: trigger failed", "error", err,
			"userID", req.UserID, "companion", req.CompanionName, "action", req.ActionType)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to trigger action"))
		return
	}

	slog.Info("Server.triggerHandler: action triggered",
		"userID", req.UserID, "companion", req.CompanionName, "action", req.ActionType)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Action triggered", nil))
}

// activeHandler lists all schedules whose cycle is still running.
func (s *Server) activeHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.activeHandler: processing active list request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.activeHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	schedules, err := s.svc.ActiveSchedules(r.Context())
	if err != nil {
		slog.Error("Server.activeHandler: failed to list active schedules", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list active schedules"))
		return
	}

	views := make([]*models.FollowUpStatus, 0, len(schedules))
	for _, sched := range schedules {
		views = append(views, sched.StatusView())
	}
	writeJSONResponse(w, http.StatusOK, models.Success(views))
}
