package config

import (
	"time"

	"incus-snapper/src/retention"
)

// LocalRemote is the name of the remote reached through the local unix socket.
const LocalRemote = "local"

// Config is the parsed configuration file.
type Config struct {
	// SnapshotPrefix marks automatic snapshots; see package snapname.
	SnapshotPrefix string   `mapstructure:"snapshot-prefix" yaml:"snapshot-prefix"`
	Concurrency    int      `mapstructure:"concurrency" yaml:"concurrency"`
	Remotes        []Remote `mapstructure:"remotes" yaml:"remotes"`
	Hooks          Hooks    `mapstructure:"hooks" yaml:"hooks"`
	Policies       []Rule   `mapstructure:"policies" yaml:"policies"`
}

// Remote describes how to reach one Incus server.
type Remote struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Address    string `mapstructure:"address" yaml:"address,omitempty"`
	ClientCert string `mapstructure:"client-cert" yaml:"client-cert,omitempty"`
	ClientKey  string `mapstructure:"client-key" yaml:"client-key,omitempty"`
	ServerCert string `mapstructure:"server-cert" yaml:"server-cert,omitempty"`
	Insecure   bool   `mapstructure:"insecure" yaml:"insecure,omitempty"`
}

// Hooks are shell commands run around backup and prune.
type Hooks struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	OnBackupStarted     string `mapstructure:"on-backup-started" yaml:"on-backup-started,omitempty"`
	OnSnapshotCreated   string `mapstructure:"on-snapshot-created" yaml:"on-snapshot-created,omitempty"`
	OnBackupCompleted   string `mapstructure:"on-backup-completed" yaml:"on-backup-completed,omitempty"`
	OnPruneStarted      string `mapstructure:"on-prune-started" yaml:"on-prune-started,omitempty"`
	OnSnapshotDeleted   string `mapstructure:"on-snapshot-deleted" yaml:"on-snapshot-deleted,omitempty"`
	OnPruneCompleted    string `mapstructure:"on-prune-completed" yaml:"on-prune-completed,omitempty"`
	OnInstanceStarted   string `mapstructure:"on-instance-started" yaml:"on-instance-started,omitempty"`
	OnInstanceCompleted string `mapstructure:"on-instance-completed" yaml:"on-instance-completed,omitempty"`
}

// Rule is one entry of the ordered policy table. Patterns are exact names,
// globs, or regular expressions prefixed with "re:". Empty include lists match
// everything.
type Rule struct {
	Name string `mapstructure:"name" yaml:"name"`

	Remotes   []string `mapstructure:"remotes" yaml:"remotes,omitempty"`
	Projects  []string `mapstructure:"projects" yaml:"projects,omitempty"`
	Instances []string `mapstructure:"instances" yaml:"instances,omitempty"`
	Statuses  []string `mapstructure:"statuses" yaml:"statuses,omitempty"`

	ExcludedRemotes   []string `mapstructure:"excluded-remotes" yaml:"excluded-remotes,omitempty"`
	ExcludedProjects  []string `mapstructure:"excluded-projects" yaml:"excluded-projects,omitempty"`
	ExcludedInstances []string `mapstructure:"excluded-instances" yaml:"excluded-instances,omitempty"`
	ExcludedStatuses  []string `mapstructure:"excluded-statuses" yaml:"excluded-statuses,omitempty"`

	// Exclude turns a matching rule into an exclusion.
	Exclude bool `mapstructure:"exclude" yaml:"exclude,omitempty"`

	// Retention is nil when the rule only selects instances for backup; prune
	// then keeps no automatic snapshot.
	Retention *retention.Policy `mapstructure:"retention" yaml:"retention,omitempty"`
}
