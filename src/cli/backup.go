package cli

import (
	"github.com/spf13/cobra"
)

func newBackupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Create an automatic snapshot of every selected instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, _, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			res, err := o.RunBackup(cmd.Context())
			if err != nil {
				return err
			}
			return res.Err()
		},
	}
}
