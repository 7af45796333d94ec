package main

import (
	"fmt"

	"contact-guard/internal/service"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "check",
		Short: "Run one limiter check; an allowed check counts like a real request",
	}
	c.AddCommand(&cobra.Command{
		Use:   "ip <ip>",
		Short: "Check the per-IP sliding window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printVerdict(cmd, getLimiter(cmd).CheckIP(cmd.Context(), args[0]))
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "email <email>",
		Short: "Check the per-address cooldown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printVerdict(cmd, getLimiter(cmd).CheckEmailCooldown(cmd.Context(), args[0]))
			return nil
		},
	})
	return c
}

func printVerdict(cmd *cobra.Command, v service.Verdict) {
	state := "denied"
	if v.Allowed {
		state = "allowed"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s reason=%s remaining=%d retry_after=%ds\n",
		state, v.Reason, v.Remaining, v.RetryAfterSeconds)
}
