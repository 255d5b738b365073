package main

import (
	"context"
	"fmt"

	"github.com/goodtune/ktime/internal/format"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Open or close a foreground session",
	Long: `Open or close a foreground session directly in storage. With the bolt
backend the database is locked by a running service; use the HTTP API there.`,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a foreground session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core) error {
			c.ledger.StartSession(context.Background())
			fmt.Println("Session started")
			return nil
		})
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the open foreground session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(func(c *core) error {
			total := c.ledger.EndSession(context.Background())
			fmt.Printf("Session ended, used today: %s\n", format.Minutes(total))
			return nil
		})
	},
}

func init() {
	sessionCmd.AddCommand(sessionStartCmd, sessionEndCmd)
	rootCmd.AddCommand(sessionCmd)
}
