// README: limoctl root command and shared connection setup.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"relialimo/internal/config"
	"relialimo/internal/infra"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "limoctl",
		Short:         "Operate the RELIAlimo farm-out automation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSettingsCmd())
	root.AddCommand(newEscalationsCmd())
	root.AddCommand(newActivityCmd())
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err.Error()))
		os.Exit(1)
	}
}

// env holds the connections a command opened; close releases them.
type env struct {
	cfg   config.Config
	log   zerolog.Logger
	db    *pgxpool.Pool
	redis *redis.Client
}

type needs struct {
	db    bool
	redis bool
}

func open(ctx context.Context, n needs) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: infra.NewLogger("warn", "limoctl")}
	if n.db {
		if e.db, err = infra.NewDB(ctx, cfg.DB.DSN); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
	}
	if n.redis {
		if e.redis, err = infra.NewRedis(ctx, cfg.Redis.Addr); err != nil {
			e.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.db != nil {
		e.db.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
}
