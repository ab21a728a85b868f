package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"incus-snapper/src/orchestrator"
)

func newQueryInstancesCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "query-instances",
		Short: "List instances and the policy that applies to each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch output {
			case "table", "yaml", "json":
			default:
				return fmt.Errorf("unsupported output format %q (want table, yaml or json)", output)
			}
			o, _, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			infos, err := o.Query(cmd.Context())
			if err != nil {
				return err
			}
			return writeInstances(a.stdout, output, infos)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, yaml or json")
	return cmd
}

func writeInstances(w io.Writer, format string, infos []orchestrator.InstanceInfo) error {
	if infos == nil {
		infos = []orchestrator.InstanceInfo{}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(infos); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REMOTE\tPROJECT\tINSTANCE\tSTATUS\tPOLICY")
	for _, i := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", i.Remote, i.Project, i.Instance, i.Status, policyColumn(i))
	}
	return tw.Flush()
}

func policyColumn(i orchestrator.InstanceInfo) string {
	switch {
	case i.Rule == "":
		return "NONE"
	case i.Excluded:
		return i.Rule + " (excluded)"
	case len(i.Matching) > 1:
		return i.Rule + " (also: " + strings.Join(i.Matching[1:], ", ") + ")"
	}
	return i.Rule
}
