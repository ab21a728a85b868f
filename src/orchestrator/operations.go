package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"incus-snapper/src/hooks"
	"incus-snapper/src/incusapi"
	"incus-snapper/src/policy"
	"incus-snapper/src/retention"
	"incus-snapper/src/snapname"
	"incus-snapper/src/snapshots"
)

// RunBackup creates one automatic snapshot for every included instance.
// The returned error is a configuration or connection error; per-item
// failures are reported through RunResult.Err.
func (o *Orchestrator) RunBackup(ctx context.Context) (*RunResult, error) {
	return o.run(ctx, runSpec{
		kind:      KindBackup,
		title:     "Backing-up instances:",
		started:   hooks.BackupStarted,
		completed: hooks.BackupCompleted,
		apply:     backupInstance,
	})
}

// RunPrune applies every included instance's retention policy.
func (o *Orchestrator) RunPrune(ctx context.Context) (*RunResult, error) {
	return o.run(ctx, runSpec{
		kind:      KindPrune,
		title:     "Pruning instances:",
		started:   hooks.PruneStarted,
		completed: hooks.PruneCompleted,
		apply:     pruneInstance,
	})
}

// RunBackupAndPrune runs a backup followed by a prune. The prune is skipped
// when the backup could not start or was cancelled.
func (o *Orchestrator) RunBackupAndPrune(ctx context.Context) (backup, prune *RunResult, err error) {
	backup, err = o.RunBackup(ctx)
	if err != nil || backup.Cancelled {
		return backup, nil, err
	}
	fmt.Fprintln(o.out)
	prune, err = o.RunPrune(ctx)
	return backup, prune, err
}

// RunNuke deletes every automatic snapshot of every included instance.
// Manual snapshots are never touched.
func (o *Orchestrator) RunNuke(ctx context.Context) (*RunResult, error) {
	return o.run(ctx, runSpec{
		kind:      KindNuke,
		title:     "Deleting automatic snapshots:",
		started:   hooks.PruneStarted,
		completed: hooks.PruneCompleted,
		apply:     nukeInstance,
	})
}

func backupInstance(ctx context.Context, w *worker, ref snapshots.Ref, d policy.Decision) {
	out, err := w.exec.Backup(ref, d, w.now)
	if out.Name != "" {
		w.printf("-> creating snapshot: %s\n", out.Name)
	}
	if err != nil {
		name := snapname.Name(w.o.cfg.SnapshotPrefix, w.now)
		w.record(&ItemError{Remote: ref.Remote, Project: ref.Project, Instance: ref.Instance, Snapshot: name, Op: "create snapshot", Err: err})
		if incusapi.IsConflict(err) {
			w.printf("-> [ FAILED ]\n   error: snapshot %s already exists\n", name)
			return
		}
		w.printf("-> [ FAILED ]\n   error: %v\n", err)
		return
	}
	w.rec.SnapshotsCreated++
	w.printf("-> [ OK ]\n")
	// The snapshot exists now; its hook runs even if the run was interrupted meanwhile.
	w.fire(context.WithoutCancel(ctx), hooks.SnapshotCreated, ref, out.Name)
}

func pruneInstance(ctx context.Context, w *worker, ref snapshots.Ref, d policy.Decision) {
	out, err := w.exec.Prune(ctx, ref, d, w.now)
	w.finishDeletes(ref, out, err)
	for _, s := range out.Kept {
		w.printf("-> keeping snapshot: %s (%s)\n", s.Name, joinKinds(out.Reasons[s.Name]))
	}
	w.rec.SnapshotsKept += len(out.Kept)
}

func joinKinds(kinds []retention.Kind) string {
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, string(k))
	}
	return strings.Join(parts, ", ")
}

func nukeInstance(ctx context.Context, w *worker, ref snapshots.Ref, d policy.Decision) {
	out, err := w.exec.Nuke(ctx, ref, d)
	w.finishDeletes(ref, out, err)
}

// finishDeletes records what the executor reported. Successful deletions are
// already counted by the executor's AfterDelete callback.
func (w *worker) finishDeletes(ref snapshots.Ref, out snapshots.PruneOutcome, err error) {
	if err != nil {
		w.record(&ItemError{Remote: ref.Remote, Project: ref.Project, Instance: ref.Instance, Op: "list snapshots", Err: err})
		w.printf("-> [ FAILED ]\n   error: %v\n", err)
		return
	}
	for _, e := range out.Errors {
		item := &ItemError{Remote: ref.Remote, Project: ref.Project, Instance: ref.Instance, Op: "delete snapshot", Err: e}
		var de *snapshots.DeleteError
		if errors.As(e, &de) {
			item.Snapshot = de.Snapshot
			item.Err = de.Err
		}
		w.record(item)
		w.printf("-> deleting snapshot: %s [ FAILED ]\n   error: %v\n", item.Snapshot, item.Err)
	}
	if out.Interrupted {
		w.rec.Cancelled = true
	}
}

// InstanceInfo describes one instance and the rules that match it.
type InstanceInfo struct {
	Remote   string   `json:"remote" yaml:"remote"`
	Project  string   `json:"project" yaml:"project"`
	Instance string   `json:"instance" yaml:"instance"`
	Status   string   `json:"status" yaml:"status"`
	Rule     string   `json:"rule,omitempty" yaml:"rule,omitempty"`
	Excluded bool     `json:"excluded" yaml:"excluded"`
	Matching []string `json:"matching" yaml:"matching"`
}

// Query lists every instance across all remotes together with its policy
// decision. It never mutates anything and stops at the first listing error.
func (o *Orchestrator) Query(ctx context.Context) ([]InstanceInfo, error) {
	clients, err := o.connect()
	if err != nil {
		return nil, err
	}
	var out []InstanceInfo
	for i, remote := range o.cfg.Remotes {
		c := clients[i]
		projects, err := c.ListProjects()
		if err != nil {
			return nil, fmt.Errorf("remote %s: list projects: %w", remote.Name, err)
		}
		for _, p := range projects {
			instances, err := c.ListInstances(p.Name)
			if err != nil {
				return nil, fmt.Errorf("remote %s: project %s: list instances: %w", remote.Name, p.Name, err)
			}
			for _, inst := range instances {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				s := policy.Subject{Remote: remote.Name, Project: p.Name, Instance: inst.Name, Status: inst.Status}
				d := o.resolver.Resolve(s)
				matching := o.resolver.Matching(s)
				if matching == nil {
					matching = []string{}
				}
				out = append(out, InstanceInfo{
					Remote:   remote.Name,
					Project:  p.Name,
					Instance: inst.Name,
					Status:   inst.Status,
					Rule:     d.Rule,
					Excluded: d.Excluded,
					Matching: matching,
				})
			}
		}
	}
	return out, nil
}

// ServerStatus is the result of reaching one remote.
type ServerStatus struct {
	Remote  string
	Version string
}

// Servers dials every remote and asks it for its server information.
func (o *Orchestrator) Servers() ([]ServerStatus, error) {
	clients, err := o.connect()
	if err != nil {
		return nil, err
	}
	out := make([]ServerStatus, 0, len(clients))
	for i, remote := range o.cfg.Remotes {
		info, err := clients[i].Server()
		if err != nil {
			return nil, fmt.Errorf("remote %s: server info: %w", remote.Name, err)
		}
		out = append(out, ServerStatus{Remote: remote.Name, Version: info.ServerVersion})
	}
	return out, nil
}
