package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/migration"
	"github.com/smallbiznis/launchpad/internal/observability"
	"github.com/smallbiznis/launchpad/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the embedded SQL migrations. Postgres uses golang-migrate; other
database types are brought up to date with gorm AutoMigrate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
			return migration.Run(conn, cfg.DBType, log.Named("migration"))
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied migration version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(conn *gorm.DB, cfg config.Config, _ *zap.Logger) error {
			if dbType := strings.ToLower(cfg.DBType); dbType != "" && dbType != "postgres" {
				return fmt.Errorf("migration versions are tracked for postgres only, got %q", cfg.DBType)
			}
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			version, dirty, err := migration.Version(sqlDB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateVersionCmd)
}

// withDatabase starts just enough of the app to hold a database handle.
func withDatabase(ctx context.Context, fn func(*gorm.DB, config.Config, *zap.Logger) error) error {
	var (
		conn *gorm.DB
		cfg  config.Config
		log  *zap.Logger
	)
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		fx.Populate(&conn, &cfg, &log),
	)
	if err := app.Err(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(conn, cfg, log)
}
