package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mreiling/idprov/internal/config"
	"github.com/mreiling/idprov/internal/mapping"
)

// ValidationResult is the JSON payload for one validated resource.
type ValidationResult struct {
	Resource string `json:"resource"`
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and every resource mapping",
		Long: `Check the configuration file against the schema, then validate every
resource mapping: key and password item constraints, mandatory
conditions, and transformer chains.

Example:
  idprov validate -c idprov.yaml
  idprov validate -c idprov.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading config", err)
	}

	reg := mapping.NewRegistry()
	var results []ValidationResult
	failed := 0
	for i := range cfg.Resources {
		rc := &cfg.Resources[i]
		res := ValidationResult{Resource: rc.Name, Valid: true}
		if err := mapping.Validate(rc.BuildMapping(), reg); err != nil {
			res.Valid = false
			res.Error = err.Error()
			failed++
		}
		results = append(results, res)
	}

	if opts.Format == "json" {
		if err := out.Success(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(out.Writer, "ok    %s\n", r.Resource)
			} else {
				fmt.Fprintf(out.Writer, "FAIL  %s: %s\n", r.Resource, r.Error)
			}
		}
		fmt.Fprintf(out.Writer, "%d resources, %d invalid\n", len(results), failed)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d mappings failed validation", failed))
	}
	return nil
}
