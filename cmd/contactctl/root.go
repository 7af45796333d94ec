package main

import (
	"context"

	"contact-guard/internal/config"
	"contact-guard/internal/repository"
	"contact-guard/internal/service"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type ctxKey string

const (
	configKey  ctxKey = "config"
	limiterKey ctxKey = "limiter"
	storeKey   ctxKey = "store"

	// commands annotated offline never touch the counter store
	offlineAnnotation = "offline"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "contactctl",
		Short:         "Operator CLI for the contact-guard limiter",
		SilenceUsage: true,
		Example: `	contactctl check ip 203.0.113.7
	contactctl reset --email someone@example.com
	contactctl token --subject alice --role operator --ttl 15m
	contactctl digest Someone@Example.com`,
		// Load config and, unless the command is offline, open the counter store.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx := context.WithValue(cmd.Context(), configKey, cfg)

			if cmd.Annotations[offlineAnnotation] == "" {
				logger := config.SetupLogging(config.Log{Level: "warn", Format: "console"})
				store := repository.Open(ctx, repository.RedisOptions{
					Addr:         cfg.Redis.Addr,
					Password:     cfg.Redis.Password,
					DB:           cfg.Redis.DB,
					DialTimeout:  cfg.Redis.DialTimeout,
					ReadTimeout:  cfg.Redis.ReadTimeout,
					WriteTimeout: cfg.Redis.WriteTimeout,
					PoolSize:     cfg.Redis.PoolSize,
				}, logger)
				if store.Backend() != "redis" {
					cmd.PrintErrln("warning: no redis available, counters are local to this process")
				}
				ctx = context.WithValue(ctx, storeKey, store)
				ctx = context.WithValue(ctx, limiterKey, newLimiter(store, cfg, logger))
			}
			cmd.SetContext(ctx)
			return nil
		},

		// Close the store after any command.
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if s, ok := cmd.Context().Value(storeKey).(repository.Store); ok && s != nil {
				return s.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newCheckCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newDigestCmd())
	return root
}

func newLimiter(store repository.Store, cfg config.Config, logger zerolog.Logger) *service.Limiter {
	return service.NewLimiter(store, service.Options{
		IPLimit:       cfg.Limits.IPRequests,
		IPWindow:      cfg.Limits.IPWindow,
		EmailCooldown: cfg.Limits.EmailCooldown,
		StoreTimeout:  cfg.Limits.StoreTimeout,
		FailurePolicy: service.ParseFailurePolicy(cfg.Limits.FailurePolicy),
		Logger:        &logger,
	})
}

func getLimiter(cmd *cobra.Command) *service.Limiter {
	l, _ := cmd.Context().Value(limiterKey).(*service.Limiter)
	return l
}

func getConfig(cmd *cobra.Command) config.Config {
	c, _ := cmd.Context().Value(configKey).(config.Config)
	return c
}
