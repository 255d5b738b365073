package gate

import (
	"context"
	"crypto/subtle"

	"github.com/goodtune/ktime/internal/format"
	"github.com/goodtune/ktime/internal/metrics"
	"github.com/goodtune/ktime/internal/policy"
	"github.com/goodtune/ktime/internal/usage"
	"github.com/rs/zerolog"
)

// Gate combines the usage ledger and the limit policy into a single
// decision and checks unlock passcodes. It holds no state of its own.
type Gate struct {
	ledger  *usage.Ledger
	policy  *policy.Policy
	decider Decider
	logger  zerolog.Logger
}

// Status is everything a UI needs to render the limiter for the moment
type Status struct {
	Date                  string   `json:"date"`
	Decision              Decision `json:"decision"`
	Enabled               bool     `json:"enabled"`
	UsageMinutes          int      `json:"usage_minutes"`
	CurrentSessionMinutes int      `json:"current_session_minutes"`
	LimitMinutes          int      `json:"limit_minutes"`
	RemainingMinutes      int      `json:"remaining_minutes"` // -1 when disabled
	Usage                 string   `json:"usage"`
	Limit                 string   `json:"limit"`
	Remaining             string   `json:"remaining,omitempty"`
}

// New creates a new enforcement gate. A nil decider selects BuiltinDecider.
func New(ledger *usage.Ledger, pol *policy.Policy, decider Decider, logger zerolog.Logger) *Gate {
	if decider == nil {
		decider = BuiltinDecider{}
	}
	return &Gate{
		ledger:  ledger,
		policy:  pol,
		decider: decider,
		logger:  logger.With().Str("component", "gate").Logger(),
	}
}

// Evaluate returns the decision for the current usage and settings.
func (g *Gate) Evaluate(ctx context.Context) Decision {
	in, _ := g.snapshot(ctx)
	return g.decide(ctx, in)
}

// Status evaluates the gate and reports the numbers behind the decision.
// Every figure comes from the same usage reading.
func (g *Gate) Status(ctx context.Context) Status {
	in, reading := g.snapshot(ctx)
	decision := g.decide(ctx, in)

	limit := in.Settings.EffectiveLimit(in.Weekday)
	remaining := in.Settings.Remaining(in.Weekday, in.UsageMinutes)

	st := Status{
		Date:                  reading.Date,
		Decision:              decision,
		Enabled:               in.Settings.Enabled,
		UsageMinutes:          in.UsageMinutes,
		CurrentSessionMinutes: reading.CurrentSessionMinutes,
		LimitMinutes:          limit,
		RemainingMinutes:      remaining,
		Usage:                 format.Minutes(in.UsageMinutes),
		Limit:                 format.Minutes(limit),
	}
	if remaining >= 0 {
		st.Remaining = format.Minutes(remaining)
	}
	return st
}

// Unlock reports whether code matches the configured passcode. Without a
// configured passcode nothing unlocks. Attempts are not rate limited.
func (g *Gate) Unlock(ctx context.Context, code string) bool {
	settings := g.policy.Settings(ctx)
	ok := settings.HasPasscode() &&
		subtle.ConstantTimeCompare([]byte(code), []byte(settings.Passcode)) == 1

	result := "rejected"
	if ok {
		result = "accepted"
	}
	metrics.UnlockAttempts.WithLabelValues(result).Inc()
	g.logger.Info().Str("result", result).Msg("Unlock attempt")

	return ok
}

func (g *Gate) snapshot(ctx context.Context) (Input, usage.Reading) {
	reading := g.ledger.Read(ctx)
	return Input{
		Settings:     g.policy.Settings(ctx),
		Weekday:      reading.At.Weekday(),
		UsageMinutes: reading.TotalMinutes,
	}, reading
}

func (g *Gate) decide(ctx context.Context, in Input) Decision {
	decision, err := g.decider.Decide(ctx, in)
	if err != nil {
		g.logger.Error().Err(err).Msg("Decider failed, allowing")
		decision = Allowed
	}
	metrics.GateDecisions.WithLabelValues(string(decision)).Inc()
	return decision
}
