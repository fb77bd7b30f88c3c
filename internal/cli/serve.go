package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mreiling/idprov/internal/reconcile"
	"github.com/mreiling/idprov/internal/sched"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled reconciliation tasks until interrupted",
		Long: `Register every configured task that has an interval and run them on
their schedules. A task skipped because its previous run is still in
flight is logged and retried at the next tick.

Example:
  idprov serve -c idprov.yaml
  idprov serve -c idprov.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	app, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	scheduler := sched.New()
	defer scheduler.Close()

	scheduled := 0
	for i := range app.Config.Tasks {
		spec := app.Config.Tasks[i]
		every, err := spec.Schedule()
		if err != nil {
			return WrapExitError(ExitCommandError, "reading task schedule", err)
		}
		if every == 0 {
			slog.Debug("task has no interval, on-demand only", "task", spec.Name)
			continue
		}

		taskCfg, err := spec.BuildTask()
		if err != nil {
			return WrapExitError(ExitCommandError, "building task", err)
		}

		runner := func(ctx context.Context) error {
			report, err := app.Engine.Run(ctx, &taskCfg)
			if errors.Is(err, reconcile.ErrAlreadyRunning) {
				slog.Info("previous run still in flight, skipping tick", "task", taskCfg.Name)
				return nil
			}
			if err != nil {
				return err
			}
			slog.Info("task finished", "task", taskCfg.Name, "summary", report.Summary())
			return nil
		}
		if err := scheduler.Register(spec.Name, runner); err != nil {
			return WrapExitError(ExitCommandError, "registering task", err)
		}
		if err := scheduler.Schedule(spec.Name, every); err != nil {
			return WrapExitError(ExitCommandError, "scheduling task", err)
		}
		slog.Info("task scheduled", "task", spec.Name, "every", every)
		scheduled++
	}

	if scheduled == 0 {
		return NewExitError(ExitCommandError, "no tasks with an interval configured")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d scheduled tasks. Press Ctrl-C to stop.\n", scheduled)

	select {
	case sig := <-sigChan:
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	case <-ctx.Done():
	}

	slog.Info("scheduler stopped gracefully")
	return nil
}
