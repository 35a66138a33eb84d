package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/ordesk/ordesk/internal/app"
	"github.com/ordesk/ordesk/internal/backfill"
	"github.com/ordesk/ordesk/internal/migration"
	"github.com/ordesk/ordesk/internal/seeder"
)

// backfillCollections are the datasets moved from the legacy layout.
var backfillCollections = []string{"orders", "order_history"}

// NewRootCommand builds the root ordesk CLI command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ordesk",
		Short: "Ordesk restaurant operations service",
	}

	root.AddCommand(newStartCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newBackfillCmd())

	return root
}

// Execute runs the ordesk CLI.
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start",
		Aliases: []string{"run"},
		Short:   "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			application := fx.New(app.Module)
			if err := application.Start(cmd.Context()); err != nil {
				return err
			}
			<-cmd.Context().Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return application.Stop(stopCtx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mig *migration.Migrator
			opts := fx.Options(app.Core, migration.Module, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Up(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			all, _ := cmd.Flags().GetBool("all")
			var mig *migration.Migrator
			opts := fx.Options(app.Core, migration.Module, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Down(ctx, steps, all); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
				return nil
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migration steps to rollback")
	downCmd.Flags().Bool("all", false, "Rollback all applied migrations")

	cmd.AddCommand(upCmd, downCmd)
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed *seeder.Seeder
			opts := fx.Options(app.Core, seeder.Module, fx.Populate(&seed))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := seed.Orders(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "seed data applied")
				return nil
			})
		},
	}
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage background workers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run worker engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			application := fx.New(app.Worker)
			if err := application.Start(cmd.Context()); err != nil {
				return err
			}
			<-cmd.Context().Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return application.Stop(stopCtx)
		},
	})
	return cmd
}

func newBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Migrate data from the legacy layout",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Copy legacy documents into the current schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			var migrator *backfill.Migrator
			opts := fx.Options(app.Core, backfill.Module, fx.Populate(&migrator))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				report, err := migrator.Run(ctx, backfillCollections)
				if err != nil {
					return err
				}
				for _, collection := range backfillCollections {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d documents written\n", collection, report.Written[collection])
				}
				if len(report.Failures) > 0 {
					for _, failure := range report.Failures {
						fmt.Fprintf(cmd.ErrOrStderr(), "failed batch %s[%d:%d] after %d attempts: %v\n",
							failure.Collection, failure.Start, failure.End, failure.Attempts, failure.Err)
					}
					return fmt.Errorf("backfill finished with %d failed batches", len(report.Failures))
				}
				return nil
			})
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare document counts between layouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var migrator *backfill.Migrator
			opts := fx.Options(app.Core, backfill.Module, fx.Populate(&migrator))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				mismatches, err := migrator.Verify(ctx, backfillCollections)
				if err != nil {
					return err
				}
				if len(mismatches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "all collections match")
					return nil
				}
				for _, mismatch := range mismatches {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: source=%d target=%d\n",
						mismatch.Collection, mismatch.SourceCount, mismatch.TargetCount)
				}
				return fmt.Errorf("%d collections out of sync", len(mismatches))
			})
		},
	}

	cmd.AddCommand(runCmd, verifyCmd)
	return cmd
}

func runWithApp(ctx context.Context, opts fx.Option, fn func(context.Context) error) error {
	application := fx.New(opts, fx.NopLogger)
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = application.Stop(stopCtx)
	}()
	return fn(ctx)
}
