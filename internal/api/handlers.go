package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/goodtune/ktime/internal/format"
	"github.com/goodtune/ktime/internal/gate"
	"github.com/goodtune/ktime/internal/policy"
	"github.com/goodtune/ktime/internal/usage"
)

const (
	defaultHistoryDays = 7
	maxHistoryDays     = 366
)

// StatusResponse is the gate status plus the unlock flag.
type StatusResponse struct {
	gate.Status
	Unlocked bool `json:"unlocked"`
}

// UsageResponse describes today's usage.
type UsageResponse struct {
	Record                usage.DailyUsageRecord `json:"record"`
	TotalMinutes          int                    `json:"total_minutes"`
	CurrentSessionMinutes int                    `json:"current_session_minutes"`
	Total                 string                 `json:"total"`
}

// SettingsResponse is the settings view; the passcode itself never leaves
// the process.
type SettingsResponse struct {
	Enabled               bool           `json:"enabled"`
	LimitMinutes          int            `json:"limit_minutes"`
	ReminderMinutes       int            `json:"reminder_minutes"`
	IsCustomDays          bool           `json:"is_custom_days"`
	CustomDailyLimits     map[string]int `json:"custom_daily_limits"`
	HasPasscode           bool           `json:"has_passcode"`
	EffectiveLimitMinutes int            `json:"effective_limit_minutes"`
}

// UnlockRequest carries a passcode attempt.
type UnlockRequest struct {
	Passcode string `json:"passcode"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s.ledger.StartSession(ctx)
	s.setUnlocked(false)

	writeJSON(w, http.StatusOK, s.status(r))
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total := s.ledger.EndSession(ctx)
	s.setUnlocked(false)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_minutes": total,
		"total":         format.Minutes(total),
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	record := s.ledger.TodayUsage(ctx)
	current := s.ledger.CurrentSessionDuration(ctx)
	total := s.ledger.TotalUsageMinutes(ctx)

	writeJSON(w, http.StatusOK, UsageResponse{
		Record:                record,
		TotalMinutes:          total,
		CurrentSessionMinutes: current,
		Total:                 format.Minutes(total),
	})
}

func (s *Server) handleUsageHistory(w http.ResponseWriter, r *http.Request) {
	days := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 366")
			return
		}
		days = n
	}

	records := s.ledger.History(r.Context(), days)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":  records,
		"count": len(records),
	})
}

func (s *Server) handleClearUsage(w http.ResponseWriter, r *http.Request) {
	s.ledger.ClearUsageData(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "cleared",
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settingsView(s.policy.Settings(r.Context())))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var update policy.Update
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	saved, err := s.policy.UpdateValidated(ctx, update, policy.Validate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.settingsView(saved))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status(r))
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !s.gate.Unlock(r.Context(), req.Passcode) {
		writeError(w, http.StatusForbidden, "Incorrect passcode")
		return
	}

	s.setUnlocked(true)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"unlocked": true,
	})
}

func (s *Server) status(r *http.Request) StatusResponse {
	return StatusResponse{
		Status:   s.gate.Status(r.Context()),
		Unlocked: s.Unlocked(),
	}
}

func (s *Server) settingsView(settings policy.Settings) SettingsResponse {
	weekday := s.policy.Clock().Now().Weekday()
	return SettingsResponse{
		Enabled:               settings.Enabled,
		LimitMinutes:          settings.LimitMinutes,
		ReminderMinutes:       settings.ReminderMinutes,
		IsCustomDays:          settings.IsCustomDays,
		CustomDailyLimits:     settings.CustomDailyLimits,
		HasPasscode:           settings.HasPasscode(),
		EffectiveLimitMinutes: settings.EffectiveLimit(weekday),
	}
}
