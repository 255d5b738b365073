package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock CODE",
	Short: "Check a passcode against the configured one",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnlock,
}

func init() {
	rootCmd.AddCommand(unlockCmd)
}

func runUnlock(cmd *cobra.Command, args []string) error {
	return withCore(func(c *core) error {
		if !c.gate.Unlock(context.Background(), args[0]) {
			color.New(color.FgRed, color.Bold).Println("Incorrect passcode")
			return fmt.Errorf("unlock rejected")
		}
		color.New(color.FgGreen, color.Bold).Println("Unlocked")
		return nil
	})
}
