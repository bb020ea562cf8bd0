package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
	"github.com/noah-isme/nhb-competitie-api/internal/service"
	"github.com/noah-isme/nhb-competitie-api/pkg/config"
)

func queueCommand(queue queueName) *cobra.Command {
	return &cobra.Command{
		Use:   queue.String(),
		Short: fmt.Sprintf("Process the %s queue until the run ends", queue),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), queue)
		},
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Process both queues in one process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), queueCompetition, queueCart)
		},
	}
}

// run drives the processors of queues until the stop time, a signal, or the
// first processor error.
func run(parent context.Context, queues ...queueName) error {
	if parent == nil {
		parent = context.Background()
	}
	w, err := newWorker()
	if err != nil {
		return err
	}
	defer w.close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopAt := w.stopAt(time.Now())
	w.logger.Info("mutaties starting", zap.Strings("queues", queueNames(queues)), zap.Time("stop_at", stopAt))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runners := make([]runner, 0, len(queues))
	for _, queue := range queues {
		runners = append(runners, w.processor(queue))
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancelRun()
		return runQueues(gctx, stopAt, runners)
	})
	g.Go(func() error {
		return w.serveMetrics(gctx)
	})

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		w.logger.Error("mutaties stopped with error", zap.Error(err))
		return err
	}
	w.logger.Info("mutaties stopped")
	return nil
}

// runQueues runs every processor until stopAt. The first failure cancels the others.
func runQueues(ctx context.Context, stopAt time.Time, runners []runner) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		r := r
		g.Go(func() error {
			return r.Run(gctx, stopAt)
		})
	}
	return g.Wait()
}

func queueNames(queues []queueName) []string {
	out := make([]string, len(queues))
	for i, q := range queues {
		out[i] = q.String()
	}
	return out
}

func tokenCommand() *cobra.Command {
	var (
		accountID int64
		role      string
		name      string
		rayon     int
		clubID    int64
		expiry    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for operators and smoke tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userRole := models.UserRole(role)
			if !userRole.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			auth := service.NewAuthService(nil, service.AuthConfig{
				AccessTokenSecret: cfg.JWT.Secret,
				AccessTokenExpiry: expiry,
				Issuer:            cfg.JWT.Issuer,
			})
			claims := models.JWTClaims{AccountID: accountID, Role: userRole, FullName: name, RayonNr: rayon, ClubID: clubID}
			token, expires, err := auth.IssueToken(claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Int64Var(&accountID, "account", 0, "account ID")
	cmd.Flags().StringVar(&role, "role", string(models.RoleSporter), "BKO, RKO, RCL, HWL or SPORTER")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().IntVar(&rayon, "rayon", 0, "rayon number for RKO and RCL")
	cmd.Flags().Int64Var(&clubID, "club", 0, "club ID for HWL")
	cmd.Flags().DurationVar(&expiry, "expiry", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}
