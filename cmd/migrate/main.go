package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codewatch.org/internal/migrate"
)

func main() {
	log.SetFlags(0)

	v := viper.New()
	v.SetEnvPrefix("CODEWATCH")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the CodeWatch database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("dsn", "", "PostgreSQL DSN (defaults to CODEWATCH_PG_DSN)")
	root.PersistentFlags().String("migrations", "ops/migrations/sql", "Path to SQL migrations")
	root.PersistentFlags().String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
	_ = v.BindPFlag("dsn", root.PersistentFlags().Lookup("dsn"))
	_ = v.BindPFlag("migrations", root.PersistentFlags().Lookup("migrations"))
	_ = v.BindPFlag("seeds", root.PersistentFlags().Lookup("seeds"))

	newManager := func() (*migrate.Manager, *sql.DB, error) {
		dsn := v.GetString("dsn")
		if dsn == "" {
			dsn = v.GetString("PG_DSN")
		}
		if dsn == "" {
			return nil, nil, errors.New("missing DSN: provide --dsn or CODEWATCH_PG_DSN")
		}
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		return migrate.NewManager(db, v.GetString("migrations"), v.GetString("seeds")), db, nil
	}

	run := func(fn func(ctx context.Context, mgr *migrate.Manager) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			mgr, db, err := newManager()
			if err != nil {
				return err
			}
			defer db.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return fn(ctx, mgr)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: run(func(ctx context.Context, mgr *migrate.Manager) error {
				return mgr.Up(ctx)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: run(func(ctx context.Context, mgr *migrate.Manager) error {
				return mgr.Down(ctx)
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Apply seed data (idempotent)",
			RunE: run(func(ctx context.Context, mgr *migrate.Manager) error {
				return mgr.Seed(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied migrations",
			RunE: run(func(ctx context.Context, mgr *migrate.Manager) error {
				history, err := mgr.Status(ctx)
				if err != nil {
					return err
				}
				for _, name := range history {
					fmt.Println(name)
				}
				return nil
			}),
		},
	)

	if err := root.Execute(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}
