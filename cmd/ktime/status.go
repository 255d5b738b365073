package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/goodtune/ktime/internal/gate"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's usage and the current gate decision",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withCore(func(c *core) error {
		printStatus(c.gate.Status(context.Background()))
		return nil
	})
}

func printStatus(st gate.Status) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Printf("  Screen Time: %s\n", st.Date)
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Used today: %s\n", st.Usage)
	if st.CurrentSessionMinutes > 0 {
		fmt.Printf("Session:    %d min (open)\n", st.CurrentSessionMinutes)
	}

	if !st.Enabled {
		fmt.Println("Limit:      off")
	} else {
		fmt.Printf("Limit:      %s\n", st.Limit)
		fmt.Printf("Remaining:  %s\n", st.Remaining)
	}
	fmt.Println()

	cyan.Print("Decision:   ")
	switch st.Decision {
	case gate.Allowed:
		green.Println("ALLOWED")
	case gate.ReminderDue:
		yellow.Println("REMINDER_DUE")
		fmt.Printf("            → %s left today\n", st.Remaining)
	case gate.Blocked:
		red.Println("BLOCKED")
		fmt.Println("            → Daily limit reached, passcode required")
	default:
		fmt.Printf("%s\n", st.Decision)
	}

	fmt.Println()
}
