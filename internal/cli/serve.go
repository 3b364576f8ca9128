package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ephemerchat/ephemer/internal/chat"
	"github.com/ephemerchat/ephemer/internal/config"
	"github.com/ephemerchat/ephemer/internal/gateway"
	"github.com/ephemerchat/ephemer/internal/llm"
	"github.com/ephemerchat/ephemer/internal/logging"
	"github.com/ephemerchat/ephemer/internal/quota"
	"github.com/ephemerchat/ephemer/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ephemer server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; absence is not an error
			godotenv.Load()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if logLevel == "" && cfg.Logging.Level != "" {
				log = logging.New(nil, cfg.Logging.Level)
			}

			registry := llm.NewRegistryFromConfig(cfg.Providers, log)
			if len(registry.Models()) == 0 {
				log.Warn().Msg("no AI providers configured — all message sends will fail")
			}

			sessions, users, closeStore, err := openStores(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			accountant := quota.NewAccountant(sessions, users, log)
			service := chat.NewService(sessions, registry, accountant,
				time.Duration(cfg.Session.TTLHours)*time.Hour, log)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sweeper := chat.NewSweeper(service,
				time.Duration(cfg.Session.SweepIntervalMin)*time.Minute,
				time.Duration(cfg.Session.SweepStartupDelaySec)*time.Second,
				log)
			sweeper.Start(ctx)
			defer sweeper.Stop()

			server := gateway.New(cfg, service, users, accountant, log)
			return server.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	cmd.Flags().StringVar(&bind, "bind", "", "bind mode: loopback, lan, custom (overrides config)")
	return cmd
}

// openStores builds the configured session and user stores. The returned
// close function is a no-op for the memory backend.
func openStores(cfg config.Config, log *logging.Logger) (store.SessionStore, store.UserStore, func(), error) {
	if cfg.Database.Store == "memory" {
		log.Info().Msg("using in-memory store")
		return store.NewMemorySessionStore(), store.NewMemoryUserStore(), func() {}, nil
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(paths.Data, "ephemer.db")
	}
	db, err := store.Open(dbPath, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info().Str("path", dbPath).Msg("using SQLite store")
	return store.NewSQLiteSessionStore(db), store.NewSQLiteUserStore(db), func() { db.Close() }, nil
}
