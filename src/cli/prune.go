package cli

import (
	"github.com/spf13/cobra"
)

func newPruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete automatic snapshots not kept by the retention policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, _, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			res, err := o.RunPrune(cmd.Context())
			if err != nil {
				return err
			}
			return res.Err()
		},
	}
}
