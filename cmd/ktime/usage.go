package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/ktime/internal/clock"
	"github.com/goodtune/ktime/internal/format"
	"github.com/spf13/cobra"
)

var historyDays int

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect or clear recorded usage",
}

var usageHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show daily usage for recent days",
	Args:  cobra.NoArgs,
	RunE:  runUsageHistory,
}

var usageClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete today's usage record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core) error {
			c.ledger.ClearUsageData(context.Background())
			fmt.Println("Today's usage cleared")
			return nil
		})
	},
}

func init() {
	usageHistoryCmd.Flags().IntVar(&historyDays, "days", 7, "Number of days to show, ending today")
	usageCmd.AddCommand(usageHistoryCmd, usageClearCmd)
	rootCmd.AddCommand(usageCmd)
}

func runUsageHistory(cmd *cobra.Command, args []string) error {
	if historyDays < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	return withCore(func(c *core) error {
		ctx := context.Background()
		limit := c.policy.Settings(ctx)

		cyan := color.New(color.FgCyan, color.Bold)
		red := color.New(color.FgRed)

		cyan.Printf("%-12s %-14s %s\n", "DATE", "USED", "SESSIONS")
		for _, record := range c.ledger.History(ctx, historyDays) {
			line := fmt.Sprintf("%-12s %-14s %d", record.Date, format.Minutes(record.TotalMinutes), len(record.Sessions))
			if day, err := time.Parse(clock.DateLayout, record.Date); err == nil && limit.LimitExceeded(day.Weekday(), record.TotalMinutes) {
				red.Println(line)
				continue
			}
			fmt.Println(line)
		}
		fmt.Println(strings.Repeat("─", 36))
		return nil
	})
}
