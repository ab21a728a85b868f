package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"incus-snapper/src/config"
)

func load(t *testing.T, body string) (*config.Config, error) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/etc/incus-snapper/config.yaml", []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return config.Load(fs, "/etc/incus-snapper/config.yaml")
}

func TestLoad_Full(t *testing.T) {
	cfg, err := load(t, `
snapshot-prefix: snap-
concurrency: 2
remotes:
  - local
  - name: serverA
    address: 192.168.1.2
    client-cert: /etc/incus-snapper/client.crt
    client-key: /etc/incus-snapper/client.key
hooks:
  timeout: 30s
  on-backup-started: echo started
  on-snapshot-created: echo {{instanceName}}
policies:
  - name: databases
    projects: ["client-*"]
    instances: [mysql]
    retention:
      keep-daily: 5
      keep-monthly: 2
      keep-limit: 10
  - name: others
    instances: "re:^web-[0-9]{1,3}$"
    retention:
      keep-last: 2
  - name: ignored
    exclude: true
`)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SnapshotPrefix != "snap-" || cfg.Concurrency != 2 {
		t.Fatalf("unexpected scalars: %+v", cfg)
	}
	if got := cfg.RemoteNames(); len(got) != 2 || got[0] != "local" || got[1] != "serverA" {
		t.Fatalf("remotes = %v", got)
	}
	if cfg.Remotes[1].Address != "192.168.1.2" || cfg.Remotes[1].ClientKey == "" {
		t.Fatalf("serverA not decoded: %+v", cfg.Remotes[1])
	}
	if !cfg.HasNonLocalRemotes() {
		t.Fatalf("expected non-local remotes")
	}
	if cfg.Hooks.Timeout != 30*time.Second || cfg.Hooks.OnSnapshotCreated != "echo {{instanceName}}" {
		t.Fatalf("hooks = %+v", cfg.Hooks)
	}
	if len(cfg.Policies) != 3 {
		t.Fatalf("policies = %d", len(cfg.Policies))
	}
	db := cfg.Policies[0]
	if db.Retention == nil || db.Retention.KeepDaily != 5 || db.Retention.KeepMonthly != 2 || db.Retention.KeepLimit == nil || *db.Retention.KeepLimit != 10 {
		t.Fatalf("databases retention = %+v", db.Retention)
	}
	if got := cfg.Policies[1].Instances; len(got) != 1 || got[0] != "re:^web-[0-9]{1,3}$" {
		t.Fatalf("scalar instances = %q", got)
	}
	if !cfg.Policies[2].Exclude || cfg.Policies[2].Retention != nil {
		t.Fatalf("ignored = %+v", cfg.Policies[2])
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, "policies:\n  - retention:\n      keep-last: 1\n")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SnapshotPrefix != "auto-" {
		t.Fatalf("prefix = %q", cfg.SnapshotPrefix)
	}
	if cfg.Concurrency != config.DefaultConcurrency {
		t.Fatalf("concurrency = %d", cfg.Concurrency)
	}
	if got := cfg.RemoteNames(); len(got) != 1 || got[0] != config.LocalRemote {
		t.Fatalf("remotes = %v", got)
	}
	if cfg.Hooks.Timeout != 10*time.Minute {
		t.Fatalf("hook timeout = %v", cfg.Hooks.Timeout)
	}
	if cfg.Policies[0].Name != "policy-1" {
		t.Fatalf("policy name = %q", cfg.Policies[0].Name)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("INCUS_SNAPPER_SNAPSHOT_PREFIX", "env-")
	cfg, err := load(t, "snapshot-prefix: file-\n")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SnapshotPrefix != "env-" {
		t.Fatalf("prefix = %q, want env override", cfg.SnapshotPrefix)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown key":        "unknown-key: 1\n",
		"negative keep":      "policies:\n  - name: a\n    retention:\n      keep-daily: -1\n",
		"zero keep-limit":    "policies:\n  - name: a\n    retention:\n      keep-last: 3\n      keep-limit: 0\n",
		"duplicate policy":   "policies:\n  - name: a\n  - name: a\n",
		"remote w/o address": "remotes:\n  - serverA\n",
		"duplicate remote":   "remotes:\n  - local\n  - local\n",
		"bad scheme":         "remotes:\n  - name: x\n    address: ftp://x\n",
		"bad concurrency":    "concurrency: -1\n",
		"exclude+retention":  "policies:\n  - name: a\n    exclude: true\n    retention:\n      keep-last: 1\n",
		"not yaml":           "policies: [\n",
	}
	for name, body := range cases {
		if _, err := load(t, body); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoad_ScalarPatternIsNotSplit(t *testing.T) {
	cfg, err := load(t, `
policies:
  - name: db
    instances: 're:db-[0-9]{1,3}'
    projects: client-a
    statuses: ""
    retention:
      keep-last: 1
`)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := cfg.Policies[0]
	if len(p.Instances) != 1 || p.Instances[0] != "re:db-[0-9]{1,3}" {
		t.Fatalf("instances = %q", p.Instances)
	}
	if len(p.Projects) != 1 || p.Projects[0] != "client-a" {
		t.Fatalf("projects = %q", p.Projects)
	}
	if len(p.Statuses) != 0 {
		t.Fatalf("statuses = %q", p.Statuses)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(afero.NewMemMapFs(), "/nope.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestYAML_RoundTrips(t *testing.T) {
	cfg, err := load(t, "policies:\n  - name: all\n    retention:\n      keep-last: 3\n")
	if err != nil {
		t.Fatal(err)
	}
	out, err := cfg.YAML()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"snapshot-prefix: auto-", "keep-last: 3", "name: local"} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}
