package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var ip, email string

	c := &cobra.Command{
		Use:   "reset",
		Short: "Clear the counters of an ip and/or email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ip == "" && email == "" {
				return errors.New("at least one of --ip or --email is required")
			}
			if err := getLimiter(cmd).Reset(cmd.Context(), ip, email); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "counters reset")
			return nil
		},
	}

	c.Flags().StringVar(&ip, "ip", "", "IP address to reset")
	c.Flags().StringVar(&email, "email", "", "Email address to reset")
	return c
}
