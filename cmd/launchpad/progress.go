package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/launchpad/internal/cache"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/observability"
	"github.com/smallbiznis/launchpad/internal/onboarding"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	"github.com/smallbiznis/launchpad/internal/profile"
	profiledomain "github.com/smallbiznis/launchpad/internal/profile/domain"
	"github.com/smallbiznis/launchpad/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	resetRemote   bool
	resetKeepFlag bool
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect or clear a user's stored onboarding progress",
}

var progressShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Print the stored status, step index and data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := strings.TrimSpace(args[0])
		return withProgress(cmd.Context(), func(ctx context.Context, tools progressTools) error {
			out := struct {
				UserID    string          `json:"user_id"`
				Local     domain.Snapshot `json:"local"`
				Step      domain.StepID   `json:"step"`
				Completed *bool           `json:"remote_completed,omitempty"`
			}{
				UserID: userID,
				Local:  tools.store.Load(ctx, userID),
			}
			out.Step = domain.Steps[domain.ClampIndex(out.Local.Index, len(domain.Steps))]
			if done, err := tools.profiles.OnboardingCompleted(ctx, userID); err == nil {
				out.Completed = &done
			} else {
				tools.log.Warn("remote completion flag unavailable", zap.Error(err))
			}

			encoded, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		})
	},
}

var progressResetCmd = &cobra.Command{
	Use:   "reset <user-id>",
	Short: "Clear a user's stored progress",
	Long: `Clear the stored status, step index and data for a user. With --remote the
profile's onboarding_completed flag is cleared as well.

This command writes the progress store directly. A running server keeps the
user's gate in memory and writes it back on the user's next change, so the
reset only takes effect once that gate has been idle for ONBOARDING_FLOW_TTL
(30m by default) or the server restarts. Run it against a stopped server or
an idle user.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := strings.TrimSpace(args[0])
		return withProgress(cmd.Context(), func(ctx context.Context, tools progressTools) error {
			if resetKeepFlag {
				tools.store.ClearProgress(ctx, userID)
			} else {
				tools.store.Clear(ctx, userID)
			}
			if resetRemote {
				if err := tools.profiles.ResetOnboarding(ctx, userID); err != nil {
					return fmt.Errorf("reset remote flag: %w", err)
				}
			}
			tools.log.Info("onboarding progress cleared",
				zap.String("user_id", userID),
				zap.Bool("remote", resetRemote),
				zap.Bool("kept_status", resetKeepFlag),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "cleared onboarding progress for %s\n", userID)
			return nil
		})
	},
}

func init() {
	progressResetCmd.Flags().BoolVar(&resetRemote, "remote", false, "Also clear the profile completion flag")
	progressResetCmd.Flags().BoolVar(&resetKeepFlag, "keep-status", false, "Clear step and data only, keeping the stored status")

	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressResetCmd)
}

type progressTools struct {
	store    domain.ProgressStore
	profiles profiledomain.Service
	log      *zap.Logger
}

func withProgress(ctx context.Context, fn func(context.Context, progressTools) error) error {
	var tools progressTools
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		cache.Module,
		clock.Module,
		profile.Module,
		fx.Provide(onboarding.NewKV, onboarding.NewProgressStore),
		fx.Populate(&tools.store, &tools.profiles, &tools.log),
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

	return fn(ctx, tools)
}
