package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

func newBackupAndPruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup-and-prune",
		Short: "Run backup, then prune",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, _, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			backup, prune, err := o.RunBackupAndPrune(cmd.Context())
			if err != nil {
				return err
			}
			var errs []error
			if backup != nil {
				errs = append(errs, backup.Err())
			}
			if prune != nil {
				errs = append(errs, prune.Err())
			}
			return errors.Join(errs...)
		},
	}
}
