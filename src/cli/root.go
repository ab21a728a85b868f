package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"incus-snapper/src/hooks"
	"incus-snapper/src/incusapi"
	"incus-snapper/src/version"
)

// Deps are the collaborators commands talk to. Zero values mean the real
// implementations.
type Deps struct {
	Fs           afero.Fs
	Dialer       incusapi.Dialer
	Clock        func() time.Time
	Stdin        io.Reader
	HookExecutor hooks.Executor
}

func (d Deps) withDefaults() Deps {
	if d.Fs == nil {
		d.Fs = afero.NewOsFs()
	}
	if d.Dialer == nil {
		d.Dialer = incusapi.RealDialer{Fs: d.Fs, UserAgent: "incus-snapper/" + version.Version}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Stdin == nil {
		d.Stdin = os.Stdin
	}
	return d
}

// NewRootCmd returns the root cobra command for the incus-snapper CLI.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	return NewRootCmdWithDeps(stdout, stderr, Deps{})
}

// NewRootCmdWithDeps is NewRootCmd with injectable collaborators.
func NewRootCmdWithDeps(stdout, stderr io.Writer, deps Deps) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	cmd := &cobra.Command{
		Use:           "incus-snapper",
		Short:         "Create and prune automatic snapshots of Incus instances",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	addGlobalFlags(cmd)

	a := &app{deps: deps.withDefaults(), stdout: stdout, stderr: stderr}
	cmd.AddCommand(newVersionCmd(stdout))
	cmd.AddCommand(newBackupCmd(a))
	cmd.AddCommand(newPruneCmd(a))
	cmd.AddCommand(newBackupAndPruneCmd(a))
	cmd.AddCommand(newNukeCmd(a))
	cmd.AddCommand(newValidateCmd(a))
	cmd.AddCommand(newQueryInstancesCmd(a))

	return cmd
}

// Execute runs the CLI with the process stdio. SIGINT and SIGTERM stop
// scheduling new work; in-flight snapshot operations finish.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
