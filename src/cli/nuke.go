package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"incus-snapper/src/safety"
)

// errAborted is returned when the user declines the nuke prompt.
var errAborted = errors.New("aborted")

func newNukeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "nuke",
		Short: "Delete every automatic snapshot of every selected instance",
		Long: "Delete every automatic snapshot of every selected instance, regardless of retention.\n" +
			"Manual snapshots are left alone. Asks for confirmation unless --yes or --force is given.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, cfg, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			opts := getSafetyOptions(cmd)
			if !opts.DryRun {
				if !opts.Yes && !opts.Force {
					fmt.Fprintf(a.stdout, "Every snapshot named %s<timestamp> of the selected instances will be deleted on:\n", cfg.SnapshotPrefix)
				}
				ok, err := safety.Confirm(opts, a.deps.Stdin, a.stdout, "Delete these automatic snapshots?", cfg.RemoteNames()...)
				if err != nil {
					return err
				}
				if !ok {
					return errAborted
				}
			}
			res, err := o.RunNuke(cmd.Context())
			if err != nil {
				return err
			}
			return res.Err()
		},
	}
}
