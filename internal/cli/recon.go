package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mreiling/idprov/internal/config"
	"github.com/mreiling/idprov/internal/reconcile"
)

// ReconOptions holds flags for the recon command.
type ReconOptions struct {
	*RootOptions
	DryRun bool
}

// NewReconCommand creates the recon command.
func NewReconCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recon <task-name>",
		Short: "Run one reconciliation task to completion",
		Long: `Pull records from the task's resource, correlate each against the
store, and apply the configured matching and unmatching rules. The sync
token advances only after a fully successful full or incremental pass.

Example:
  idprov recon hr-pull
  idprov recon hr-pull --dry-run --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecon(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "classify records without writing anywhere")

	return cmd
}

func runRecon(opts *ReconOptions, name string, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	app, err := buildApp(ctx, opts.RootOptions)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer app.Close()

	var spec *config.TaskSpec
	for i := range app.Config.Tasks {
		if app.Config.Tasks[i].Name == name {
			spec = &app.Config.Tasks[i]
			break
		}
	}
	if spec == nil {
		_ = out.Error(ErrCodeNotFound, fmt.Sprintf("task %s not configured", name), nil)
		return NewExitError(ExitCommandError, "task not found")
	}

	taskCfg, err := spec.BuildTask()
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "building task", err)
	}
	if opts.DryRun {
		taskCfg.DryRun = true
	}

	report, err := app.Engine.Run(ctx, &taskCfg)
	if err != nil {
		_ = out.Error(ErrCodeReconFail, err.Error(), nil)
		return WrapExitError(ExitCommandError, "running task", err)
	}

	return printReport(out, report)
}

func printReport(out *OutputFormatter, report *reconcile.Report) error {
	if out.Format == "json" {
		if err := out.Success(report); err != nil {
			return err
		}
	} else {
		for _, r := range report.Records {
			line := fmt.Sprintf("%-9s %s", r.Action, r.Key)
			if r.Reason != "" {
				line += ": " + r.Reason
			}
			fmt.Fprintln(out.Writer, line)
		}
		fmt.Fprintln(out.Writer, report.Summary())
	}

	if !report.Success() {
		return NewExitError(ExitFailure, "reconciliation finished with failures")
	}
	return nil
}
