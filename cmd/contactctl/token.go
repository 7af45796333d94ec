package main

import (
	"errors"
	"fmt"
	"time"

	"contact-guard/internal/middleware"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	c := &cobra.Command{
		Use:         "token",
		Short:       "Mint an admin token for POST /admin/limits/reset",
		Annotations: map[string]string{offlineAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig(cmd)
			if cfg.Admin.JWTSecret == "" {
				return errors.New("ADMIN_JWT_SECRET is not set")
			}
			tok, err := middleware.SignAdminToken([]byte(cfg.Admin.JWTSecret), cfg.Admin.JWTIssuer, subject, role, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	c.Flags().StringVar(&subject, "subject", "", "Who the token is issued to")
	c.Flags().StringVar(&role, "role", middleware.RoleOperator, "Token role (admin or operator)")
	c.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "Token lifetime")
	_ = c.MarkFlagRequired("subject")
	return c
}
