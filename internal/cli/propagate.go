package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mreiling/idprov/internal/propagation"
)

// PropagateOptions holds flags for the propagate command.
type PropagateOptions struct {
	*RootOptions
	Operation string
	Password  string
	Exclude   []string
	DryRun    bool
}

// NewPropagateCommand creates the propagate command.
func NewPropagateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PropagateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "propagate <subject-key>",
		Short: "Push one subject out to its resources",
		Long: `Resolve the subject's outbound attributes for every linked and
membership-inherited resource and execute the resulting tasks, primary
resource first. With --dry-run the tasks are derived and printed but
nothing is written.

Example:
  idprov propagate 6f1c... --op update
  idprov propagate 6f1c... --op create --password s3cret --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPropagate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Operation, "op", "update", "operation (create|update|delete)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "cleartext password to provision")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "resources to skip")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "derive tasks without executing them")

	return cmd
}

func runPropagate(opts *PropagateOptions, key string, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	op := propagation.Operation(strings.ToUpper(opts.Operation))
	switch op {
	case propagation.OpCreate, propagation.OpUpdate, propagation.OpDelete:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid operation %q", opts.Operation))
	}

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

	sub, err := app.Store.Get(ctx, key)
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading subject", err)
	}
	if sub == nil {
		_ = out.Error(ErrCodeNotFound, fmt.Sprintf("subject %s not found", key), nil)
		return NewExitError(ExitCommandError, "subject not found")
	}

	popts := propagation.Options{Password: opts.Password, Exclude: opts.Exclude}

	if opts.DryRun {
		tasks, pre, err := app.Manager.DeriveTasks(ctx, sub, op, popts)
		if err != nil {
			_ = out.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "deriving tasks", err)
		}
		return printTasks(out, tasks, pre)
	}

	statuses, err := app.Manager.Propagate(ctx, sub, op, popts)
	if err != nil {
		_ = out.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "propagating", err)
	}
	return printStatuses(out, statuses)
}

func printTasks(out *OutputFormatter, tasks []propagation.Task, pre []propagation.Status) error {
	if out.Format == "json" {
		return out.Success(map[string]any{"tasks": tasks, "statuses": pre})
	}
	for _, t := range tasks {
		fmt.Fprintf(out.Writer, "%-8s %-20s account=%s attrs=%d\n", t.Operation, t.Resource, t.AccountID, len(t.Attrs))
	}
	for _, s := range pre {
		fmt.Fprintf(out.Writer, "%-8s %-20s %s: %s\n", s.Operation, s.Resource, s.Status, s.FailureReason)
	}
	return nil
}

func printStatuses(out *OutputFormatter, statuses []propagation.Status) error {
	if out.Format == "json" {
		if err := out.Success(statuses); err != nil {
			return err
		}
	} else {
		for _, s := range statuses {
			line := fmt.Sprintf("%-8s %-20s %s", s.Operation, s.Resource, s.Status)
			if s.FailureReason != "" {
				line += ": " + s.FailureReason
			}
			fmt.Fprintln(out.Writer, line)
		}
	}
	for _, s := range statuses {
		if s.Status == propagation.StatusFailure {
			return NewExitError(ExitFailure, "propagation finished with failures")
		}
	}
	return nil
}
