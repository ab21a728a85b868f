package cli

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"incus-snapper/src/config"
	"incus-snapper/src/logging"
	"incus-snapper/src/orchestrator"
)

// app carries what every command needs between flag parsing and RunE.
type app struct {
	deps   Deps
	stdout io.Writer
	stderr io.Writer
}

func (a *app) logger(cmd *cobra.Command) (*logrus.Logger, error) {
	level, _ := cmd.Root().PersistentFlags().GetString("log-level")
	format, _ := cmd.Root().PersistentFlags().GetString("log-format")
	return logging.New(a.stderr, level, format)
}

func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	return config.Load(a.deps.Fs, path)
}

// orchestrator loads the configuration and builds an Orchestrator honoring
// the global flags.
func (a *app) orchestrator(cmd *cobra.Command) (*orchestrator.Orchestrator, *config.Config, error) {
	log, err := a.logger(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	opts := getSafetyOptions(cmd)
	o, err := orchestrator.New(orchestrator.Options{
		Config:       cfg,
		Dialer:       a.deps.Dialer,
		Clock:        a.deps.Clock,
		DryRun:       opts.DryRun,
		Stdout:       a.stdout,
		Log:          log,
		HookExecutor: a.deps.HookExecutor,
	})
	if err != nil {
		return nil, nil, err
	}
	log.WithFields(logrus.Fields{
		"remotes":  len(cfg.Remotes),
		"policies": o.Resolver().Len(),
		"dry_run":  opts.DryRun,
	}).Debug("configuration loaded")
	return o, cfg, nil
}
