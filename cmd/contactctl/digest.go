package main

import (
	"fmt"

	"contact-guard/internal/identity"

	"github.com/spf13/cobra"
)

func newDigestCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "digest <email>",
		Short:       "Print the key an address is rate limited under",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{offlineAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), identity.Normalize(args[0]))
			return nil
		},
	}
}
