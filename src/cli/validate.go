package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errNoMatch is returned by validate when the policy table selects nothing.
var errNoMatch = errors.New("no instance matches any policy")

func newValidateCmd(a *app) *cobra.Command {
	var printCfg bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and that every remote is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, cfg, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			if printCfg {
				b, err := cfg.YAML()
				if err != nil {
					return err
				}
				if _, err := a.stdout.Write(b); err != nil {
					return err
				}
			}
			servers, err := o.Servers()
			if err != nil {
				return err
			}
			for _, srv := range servers {
				version := srv.Version
				if version == "" {
					version = "unknown version"
				}
				fmt.Fprintf(a.stdout, "remote %s: reachable (%s)\n", srv.Remote, version)
			}
			infos, err := o.Query(cmd.Context())
			if err != nil {
				return err
			}
			matched := 0
			for _, i := range infos {
				if i.Rule != "" {
					matched++
				}
			}
			if matched == 0 {
				return errNoMatch
			}
			fmt.Fprintf(a.stdout, "configuration OK: %d remote(s), %d policies, %d of %d instances matched\n",
				len(cfg.Remotes), o.Resolver().Len(), matched, len(infos))
			return nil
		},
	}
	cmd.Flags().BoolVar(&printCfg, "print", false, "Print the effective configuration")
	return cmd
}
