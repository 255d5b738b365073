package policy

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/ktime/internal/clock"
	"github.com/goodtune/ktime/internal/storage/memory"
	"github.com/rs/zerolog"
)

// 2024-03-04 is a Monday
var monday = time.Date(2024, 3, 4, 12, 0, 0, 0, time.Local)

type brokenStore struct{}

var errBroken = errors.New("store unavailable")

func (brokenStore) Get(context.Context, string) (string, error)    { return "", errBroken }
func (brokenStore) Set(context.Context, string, string) error      { return errBroken }
func (brokenStore) Delete(context.Context, string) error           { return errBroken }
func (brokenStore) List(context.Context, string) ([]string, error) { return nil, errBroken }
func (brokenStore) Close() error                                   { return nil }

func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func newTestPolicy(t *testing.T) (*Policy, *clock.TestClock, *memory.Store) {
	t.Helper()
	clk := clock.NewTestClock(monday)
	store := memory.New()
	return New(store, clk, zerolog.Nop()), clk, store
}

func TestSettingsDefaults(t *testing.T) {
	p, _, _ := newTestPolicy(t)
	got := p.Settings(context.Background())

	if got.Enabled || got.LimitMinutes != 60 || got.ReminderMinutes != 10 || got.IsCustomDays {
		t.Errorf("Settings() = %+v, want defaults", got)
	}
	if got.CustomDailyLimits == nil || len(got.CustomDailyLimits) != 0 {
		t.Errorf("CustomDailyLimits = %v, want empty map", got.CustomDailyLimits)
	}
	if got.HasPasscode() {
		t.Error("default settings should not have a passcode")
	}
}

func TestSetSettingsMerges(t *testing.T) {
	p, _, store := newTestPolicy(t)
	ctx := context.Background()

	p.SetSettings(ctx, Update{Passcode: strPtr("1234"), LimitMinutes: intPtr(90)})
	merged := p.SetSettings(ctx, Update{Enabled: boolPtr(true)})

	if !merged.Enabled || merged.LimitMinutes != 90 || merged.ReminderMinutes != 10 || merged.Passcode != "1234" {
		t.Fatalf("merged settings = %+v", merged)
	}

	raw, err := store.Get(ctx, SettingsKey)
	if err != nil {
		t.Fatalf("settings not persisted: %v", err)
	}
	var persisted Settings
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		t.Fatalf("persisted settings are not JSON: %v", err)
	}
	if persisted.LimitMinutes != 90 || !persisted.Enabled {
		t.Errorf("persisted = %+v", persisted)
	}

	cleared := p.SetSettings(ctx, Update{Passcode: strPtr("")})
	if cleared.HasPasscode() {
		t.Error("empty passcode update should clear the passcode")
	}
}

func TestSetSettingsDoesNotValidate(t *testing.T) {
	p, _, _ := newTestPolicy(t)
	got := p.SetSettings(context.Background(), Update{ReminderMinutes: intPtr(500), Enabled: boolPtr(true)})
	if got.ReminderMinutes != 500 || !got.Enabled {
		t.Errorf("SetSettings should store input as given, got %+v", got)
	}
}

func TestUpdateValidatedRejectsAgainstStoredSettings(t *testing.T) {
	p, _, _ := newTestPolicy(t)
	ctx := context.Background()

	if _, err := p.UpdateValidated(ctx, Update{ReminderMinutes: intPtr(50)}, Validate); err != nil {
		t.Fatalf("reminder 50 under limit 60: %v", err)
	}

	got, err := p.UpdateValidated(ctx, Update{LimitMinutes: intPtr(30)}, Validate)
	if !errors.Is(err, ErrInvalidReminder) {
		t.Fatalf("err = %v, want ErrInvalidReminder", err)
	}
	if got.LimitMinutes != 60 || got.ReminderMinutes != 50 {
		t.Errorf("returned settings = %+v, want stored 60/50", got)
	}
	if stored := p.Settings(ctx); stored.LimitMinutes != 60 {
		t.Errorf("rejected update was persisted: %+v", stored)
	}
}

func TestUpdateValidatedConcurrentUpdatesStayValid(t *testing.T) {
	for i := 0; i < 50; i++ {
		p, _, _ := newTestPolicy(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for _, u := range []Update{
			{ReminderMinutes: intPtr(50)},
			{LimitMinutes: intPtr(30)},
		} {
			wg.Add(1)
			go func(u Update) {
				defer wg.Done()
				_, _ = p.UpdateValidated(ctx, u, Validate)
			}(u)
		}
		wg.Wait()

		if err := Validate(p.Settings(ctx)); err != nil {
			t.Fatalf("run %d persisted invalid settings %+v: %v", i, p.Settings(ctx), err)
		}
	}
}

func TestUpdateValidatedNilCheck(t *testing.T) {
	p, _, _ := newTestPolicy(t)
	got, err := p.UpdateValidated(context.Background(), Update{LimitMinutes: intPtr(5)}, nil)
	if err != nil || got.LimitMinutes != 5 {
		t.Errorf("UpdateValidated(nil check) = %+v, %v", got, err)
	}
}

func TestEffectiveLimitCustomDays(t *testing.T) {
	p, clk, _ := newTestPolicy(t)
	ctx := context.Background()

	p.SetSettings(ctx, Update{
		LimitMinutes:      intPtr(120),
		IsCustomDays:      boolPtr(true),
		CustomDailyLimits: map[string]int{"Monday": 30},
	})

	if got := p.EffectiveLimitMinutes(ctx); got != 30 {
		t.Errorf("Monday EffectiveLimitMinutes() = %d, want 30", got)
	}

	clk.Advance(24 * time.Hour)
	if got := p.EffectiveLimitMinutes(ctx); got != DefaultCustomDayMinutes {
		t.Errorf("Tuesday EffectiveLimitMinutes() = %d, want %d", got, DefaultCustomDayMinutes)
	}

	p.SetSettings(ctx, Update{IsCustomDays: boolPtr(false)})
	if got := p.EffectiveLimitMinutes(ctx); got != 120 {
		t.Errorf("flat EffectiveLimitMinutes() = %d, want 120", got)
	}
}

func TestCustomDayNamesAreCanonicalised(t *testing.T) {
	p, _, _ := newTestPolicy(t)
	got := p.SetSettings(context.Background(), Update{
		IsCustomDays:      boolPtr(true),
		CustomDailyLimits: map[string]int{"mon": 15, "SATURDAY": 240},
	})

	if got.CustomDailyLimits["Monday"] != 15 || got.CustomDailyLimits["Saturday"] != 240 {
		t.Errorf("CustomDailyLimits = %v", got.CustomDailyLimits)
	}
	if got.EffectiveLimit(time.Monday) != 15 {
		t.Errorf("EffectiveLimit(Monday) = %d, want 15", got.EffectiveLimit(time.Monday))
	}
}

func TestSettingsRules(t *testing.T) {
	enabled := Settings{Enabled: true, LimitMinutes: 60, ReminderMinutes: 10, Passcode: "1234"}
	disabled := enabled
	disabled.Enabled = false

	tests := []struct {
		name      string
		settings  Settings
		usage     int
		exceeded  bool
		reminder  bool
		remaining int
	}{
		{"disabled ignores usage", disabled, 500, false, false, -1},
		{"fresh day", enabled, 0, false, false, 60},
		{"just outside reminder window", enabled, 49, false, false, 11},
		{"reminder window opens", enabled, 50, false, true, 10},
		{"last minute", enabled, 59, false, true, 1},
		{"limit reached", enabled, 60, true, false, 0},
		{"over limit", enabled, 75, true, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.settings.LimitExceeded(time.Monday, tt.usage); got != tt.exceeded {
				t.Errorf("LimitExceeded() = %v, want %v", got, tt.exceeded)
			}
			if got := tt.settings.ReminderDue(time.Monday, tt.usage); got != tt.reminder {
				t.Errorf("ReminderDue() = %v, want %v", got, tt.reminder)
			}
			if got := tt.settings.Remaining(time.Monday, tt.usage); got != tt.remaining {
				t.Errorf("Remaining() = %d, want %d", got, tt.remaining)
			}
		})
	}
}

func TestPolicyDelegatesToToday(t *testing.T) {
	p, _, _ := newTestPolicy(t)
	ctx := context.Background()

	p.SetSettings(ctx, Update{Enabled: boolPtr(true), Passcode: strPtr("1234"), LimitMinutes: intPtr(30), ReminderMinutes: intPtr(5)})

	if !p.IsLimitExceeded(ctx, 30) {
		t.Error("IsLimitExceeded(30) = false, want true")
	}
	if !p.ShouldShowReminder(ctx, 26) {
		t.Error("ShouldShowReminder(26) = false, want true")
	}
	if got := p.RemainingMinutes(ctx, 12); got != 18 {
		t.Errorf("RemainingMinutes(12) = %d, want 18", got)
	}
}

func TestPolicyFailsOpen(t *testing.T) {
	p := New(brokenStore{}, clock.NewTestClock(monday), zerolog.Nop())
	ctx := context.Background()

	if got := p.Settings(ctx); got.Enabled || got.LimitMinutes != 60 {
		t.Errorf("Settings() = %+v, want defaults", got)
	}

	merged := p.SetSettings(ctx, Update{Enabled: boolPtr(true), Passcode: strPtr("1234")})
	if !merged.Enabled {
		t.Error("SetSettings should return the merged value even when the write fails")
	}
	if p.IsLimitExceeded(ctx, 1000) {
		t.Error("unreadable settings must not block")
	}
	if got := p.RemainingMinutes(ctx, 0); got != -1 {
		t.Errorf("RemainingMinutes() = %d, want -1", got)
	}
}

func TestCorruptSettingsReadAsDefaults(t *testing.T) {
	p, _, store := newTestPolicy(t)
	ctx := context.Background()
	_ = store.Set(ctx, SettingsKey, "not json")

	if got := p.Settings(ctx); got.LimitMinutes != 60 || got.Enabled {
		t.Errorf("Settings() = %+v, want defaults", got)
	}
}
