package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/ktime/internal/clock"
	"github.com/goodtune/ktime/internal/format"
	"github.com/goodtune/ktime/internal/policy"
	"github.com/spf13/cobra"
)

var (
	settingsEnabled    bool
	settingsLimit      int
	settingsReminder   int
	settingsCustomDays bool
	settingsDays       map[string]int
	settingsPasscode   string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the screen-time limit",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current limit settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core) error {
			printSettings(c.policy.Settings(context.Background()), time.Now().Weekday())
			return nil
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change limit settings",
	Example: `  ktime settings set --passcode 1234 --enabled
  ktime settings set --limit 90 --reminder 15
  ktime settings set --custom-days --day Saturday=180 --day Sunday=180`,
	Args: cobra.NoArgs,
	RunE: runSettingsSet,
}

func init() {
	flags := settingsSetCmd.Flags()
	flags.BoolVar(&settingsEnabled, "enabled", false, "Turn the limiter on or off")
	flags.IntVar(&settingsLimit, "limit", 0, "Daily limit in minutes")
	flags.IntVar(&settingsReminder, "reminder", 0, "Reminder window in minutes before the limit")
	flags.BoolVar(&settingsCustomDays, "custom-days", false, "Use per-weekday limits")
	flags.StringToIntVar(&settingsDays, "day", nil, "Per-weekday limit as Weekday=minutes (replaces all weekday limits)")
	flags.StringVar(&settingsPasscode, "passcode", "", "4-digit unlock passcode (empty clears it)")

	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	update := settingsUpdateFromFlags(cmd)

	return withCore(func(c *core) error {
		ctx := context.Background()

		saved, err := c.policy.UpdateValidated(ctx, update, policy.Validate)
		if err != nil {
			return fmt.Errorf("invalid settings: %w", err)
		}
		printSettings(saved, time.Now().Weekday())
		return nil
	})
}

// settingsUpdateFromFlags builds an update from the flags given on the command line
func settingsUpdateFromFlags(cmd *cobra.Command) policy.Update {
	var update policy.Update
	flags := cmd.Flags()

	if flags.Changed("enabled") {
		update.Enabled = &settingsEnabled
	}
	if flags.Changed("limit") {
		update.LimitMinutes = &settingsLimit
	}
	if flags.Changed("reminder") {
		update.ReminderMinutes = &settingsReminder
	}
	if flags.Changed("custom-days") {
		update.IsCustomDays = &settingsCustomDays
	}
	if flags.Changed("day") {
		update.CustomDailyLimits = settingsDays
	}
	if flags.Changed("passcode") {
		update.Passcode = &settingsPasscode
	}
	return update
}

func printSettings(s policy.Settings, today time.Weekday) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow, color.Bold)

	cyan.Println("\n[limit]")
	if s.Enabled {
		green.Println("  enabled         = true")
	} else {
		yellow.Println("  enabled         = false")
	}
	fmt.Printf("  limit_minutes   = %d (%s)\n", s.LimitMinutes, format.Minutes(s.LimitMinutes))
	fmt.Printf("  reminder        = %d\n", s.ReminderMinutes)
	fmt.Printf("  has_passcode    = %t\n", s.HasPasscode())
	fmt.Printf("  is_custom_days  = %t\n", s.IsCustomDays)

	if len(s.CustomDailyLimits) > 0 {
		cyan.Println("\n[custom_daily_limits]")
		days := make([]string, 0, len(s.CustomDailyLimits))
		for day := range s.CustomDailyLimits {
			days = append(days, day)
		}
		sort.Slice(days, func(i, j int) bool {
			a, _ := clock.ParseWeekday(days[i])
			b, _ := clock.ParseWeekday(days[j])
			return a < b
		})
		for _, day := range days {
			fmt.Printf("  %-10s = %s\n", day, format.Minutes(s.CustomDailyLimits[day]))
		}
	}

	fmt.Println()
	cyan.Printf("Today (%s): %s\n\n", today, format.Minutes(s.EffectiveLimit(today)))
}
