package policy

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/goodtune/ktime/internal/clock"
	"github.com/goodtune/ktime/internal/metrics"
	"github.com/goodtune/ktime/internal/storage"
	"github.com/rs/zerolog"
)

// Update carries a partial settings change. Nil fields are left as they are.
type Update struct {
	Enabled           *bool          `json:"enabled,omitempty"`
	LimitMinutes      *int           `json:"limit_minutes,omitempty"`
	ReminderMinutes   *int           `json:"reminder_minutes,omitempty"`
	IsCustomDays      *bool          `json:"is_custom_days,omitempty"`
	CustomDailyLimits map[string]int `json:"custom_daily_limits,omitempty"` // replaces the whole map
	Passcode          *string        `json:"passcode,omitempty"`            // "" clears it
}

// Apply returns s with the non-nil fields of u merged in.
func (u Update) Apply(s Settings) Settings {
	s = s.clone()
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
	}
	if u.LimitMinutes != nil {
		s.LimitMinutes = *u.LimitMinutes
	}
	if u.ReminderMinutes != nil {
		s.ReminderMinutes = *u.ReminderMinutes
	}
	if u.IsCustomDays != nil {
		s.IsCustomDays = *u.IsCustomDays
	}
	if u.CustomDailyLimits != nil {
		limits := make(map[string]int, len(u.CustomDailyLimits))
		for name, minutes := range u.CustomDailyLimits {
			limits[canonicalDay(name)] = minutes
		}
		s.CustomDailyLimits = limits
	}
	if u.Passcode != nil {
		s.Passcode = *u.Passcode
	}
	return s
}

// Policy owns the persisted limit settings and answers limit questions for
// the current day. It trusts its input; see Validate.
type Policy struct {
	store  storage.Store
	clock  clock.Clock
	logger zerolog.Logger
	mu     sync.Mutex
}

// New creates a new limit policy
func New(store storage.Store, clk clock.Clock, logger zerolog.Logger) *Policy {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Policy{
		store:  store,
		clock:  clk,
		logger: logger.With().Str("component", "limit-policy").Logger(),
	}
}

// Clock returns the time source used to pick today's weekday.
func (p *Policy) Clock() clock.Clock {
	return p.clock
}

// Settings returns the persisted settings, or defaults when none can be read.
func (p *Policy) Settings(ctx context.Context) Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(ctx)
}

// SetSettings merges update into the persisted settings and returns the
// merged value. A failed write is logged; the merged value is still returned.
func (p *Policy) SetSettings(ctx context.Context, update Update) Settings {
	p.mu.Lock()
	defer p.mu.Unlock()

	merged := update.Apply(p.load(ctx))
	p.save(ctx, merged)
	return merged
}

// UpdateValidated merges update into the persisted settings and runs check
// on the result before saving, all under one lock. When check fails nothing
// is written and the current settings are returned with the error.
func (p *Policy) UpdateValidated(ctx context.Context, update Update, check func(Settings) error) (Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.load(ctx)
	merged := update.Apply(current)
	if check != nil {
		if err := check(merged); err != nil {
			return current, err
		}
	}
	p.save(ctx, merged)
	return merged, nil
}

// EffectiveLimitMinutes returns today's budget in minutes.
func (p *Policy) EffectiveLimitMinutes(ctx context.Context) int {
	return p.Settings(ctx).EffectiveLimit(p.clock.Now().Weekday())
}

// IsLimitExceeded reports whether usage has used up today's budget.
func (p *Policy) IsLimitExceeded(ctx context.Context, usage int) bool {
	return p.Settings(ctx).LimitExceeded(p.clock.Now().Weekday(), usage)
}

// ShouldShowReminder reports whether usage is inside today's reminder window.
func (p *Policy) ShouldShowReminder(ctx context.Context, usage int) bool {
	return p.Settings(ctx).ReminderDue(p.clock.Now().Weekday(), usage)
}

// RemainingMinutes returns today's remaining budget, -1 when disabled.
func (p *Policy) RemainingMinutes(ctx context.Context, usage int) int {
	return p.Settings(ctx).Remaining(p.clock.Now().Weekday(), usage)
}

func (p *Policy) save(ctx context.Context, merged Settings) {
	data, err := json.Marshal(merged)
	if err != nil {
		p.storageError("encode", err).Msg("Failed to encode settings")
		return
	}
	if err := p.store.Set(ctx, SettingsKey, string(data)); err != nil {
		p.storageError("set", err).Msg("Failed to persist settings")
		return
	}

	p.logger.Info().
		Bool("enabled", merged.Enabled).
		Int("limit_minutes", merged.LimitMinutes).
		Int("reminder_minutes", merged.ReminderMinutes).
		Bool("is_custom_days", merged.IsCustomDays).
		Bool("has_passcode", merged.HasPasscode()).
		Msg("Updated limit settings")
}

func (p *Policy) load(ctx context.Context) Settings {
	raw, err := p.store.Get(ctx, SettingsKey)
	if err != nil {
		if !storage.IsNotFound(err) {
			p.storageError("get", err).Msg("Failed to read settings, using defaults")
		}
		return DefaultSettings()
	}

	settings := DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		p.storageError("decode", err).Msg("Discarding unreadable settings, using defaults")
		return DefaultSettings()
	}
	if settings.CustomDailyLimits == nil {
		settings.CustomDailyLimits = map[string]int{}
	}
	return settings
}

func (p *Policy) storageError(op string, err error) *zerolog.Event {
	metrics.StorageErrors.WithLabelValues("policy", op).Inc()
	return p.logger.Error().Err(err).Str("op", op)
}
