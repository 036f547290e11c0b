package cmd

import (
	"bank-ledger-reconciler/pkg/errors"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings as YAML",
		Long: `Config resolves the preset, config file, environment and flags exactly
as reconcile would and prints the result. The output is a valid config file.

Examples:
  reconciler config
  reconciler config --preset strict > reconciler.yaml
  RECONCILER_RUN_WORKERS=2 reconciler config --config reconciler.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(opts.settings); err != nil {
				return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to encode settings")
			}
			if err := enc.Close(); err != nil {
				return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to encode settings")
			}
			return nil
		},
	}
}
