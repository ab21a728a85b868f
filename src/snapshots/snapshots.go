// Package snapshots creates and prunes the automatic snapshots of a single
// instance.
package snapshots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"incus-snapper/src/incusapi"
	"incus-snapper/src/policy"
	"incus-snapper/src/retention"
	"incus-snapper/src/snapname"
)

// Ref identifies an instance on a remote.
type Ref struct {
	Remote   string
	Project  string
	Instance string
}

func (r Ref) String() string { return r.Remote + ":" + r.Project + "/" + r.Instance }

// Executor performs backup and prune against one client.
type Executor struct {
	Client incusapi.Client
	// Prefix marks automatic snapshots.
	Prefix string
	DryRun bool
	Log    logrus.FieldLogger

	// AfterDelete, when set, is called after every successful (or, in
	// dry-run, simulated) deletion.
	AfterDelete func(ref Ref, s retention.Snapshot)
}

// BackupOutcome reports what Backup did, or would have done in dry-run.
// Name is set once the name was found free on the instance, that is when a
// create was attempted or simulated.
type BackupOutcome struct {
	Created bool
	Name    string
	DryRun  bool
}

// Backup creates one automatic snapshot named after now. Excluded decisions
// are a no-op. A snapshot with the same name already present is reported as
// an incusapi.ConflictError, in dry-run as well.
func (e *Executor) Backup(ref Ref, d policy.Decision, now time.Time) (BackupOutcome, error) {
	if d.Excluded {
		return BackupOutcome{}, nil
	}
	name := snapname.Name(e.Prefix, now)
	out := BackupOutcome{DryRun: e.DryRun}

	existing, err := e.Client.ListSnapshots(ref.Project, ref.Instance)
	if err != nil {
		return out, fmt.Errorf("list snapshots of %s: %w", ref, err)
	}
	for _, s := range existing {
		if s.Name == name {
			return out, fmt.Errorf("create snapshot %s of %s: %w", name, ref, &incusapi.ConflictError{Resource: "snapshot", Name: ref.Instance + "/" + name})
		}
	}
	out.Name = name

	if !e.DryRun {
		if err := e.Client.CreateSnapshot(ref.Project, ref.Instance, name); err != nil {
			return out, fmt.Errorf("create snapshot %s of %s: %w", name, ref, err)
		}
	}
	out.Created = true
	e.log(ref).WithFields(logrus.Fields{"snapshot": name, "dry_run": e.DryRun}).Debug("snapshot created")
	return out, nil
}

// DeleteError records a failed deletion.
type DeleteError struct {
	Snapshot string
	Err      error
}

func (e *DeleteError) Error() string { return "delete snapshot " + e.Snapshot + ": " + e.Err.Error() }
func (e *DeleteError) Unwrap() error { return e.Err }

// PruneOutcome reports the automatic snapshots an instance kept and deleted.
// Manual snapshots never appear here.
type PruneOutcome struct {
	Kept    []retention.Snapshot
	Deleted []retention.Snapshot
	Errors  []error

	// Reasons lists, per kept snapshot, the bucket kinds that retained it.
	Reasons map[string][]retention.Kind
	// Interrupted is set when the context was cancelled between deletions.
	Interrupted bool
}

// Prune lists the instance's snapshots once, evaluates the retention policy
// over the automatic ones and deletes the rest. A failed deletion is recorded
// and the next one proceeds. Cancellation is honoured between deletions.
func (e *Executor) Prune(ctx context.Context, ref Ref, d policy.Decision, now time.Time) (PruneOutcome, error) {
	if d.Excluded {
		return PruneOutcome{}, nil
	}
	auto, err := e.automatic(ref)
	if err != nil {
		return PruneOutcome{}, err
	}
	res := retention.Evaluate(d.Retention, auto, now)
	out := PruneOutcome{Kept: res.Keep, Reasons: res.Reasons}
	e.deleteAll(ctx, ref, res.Delete, &out)
	return out, nil
}

// Nuke deletes every automatic snapshot of the instance regardless of
// retention. Manual snapshots are left alone.
func (e *Executor) Nuke(ctx context.Context, ref Ref, d policy.Decision) (PruneOutcome, error) {
	if d.Excluded {
		return PruneOutcome{}, nil
	}
	auto, err := e.automatic(ref)
	if err != nil {
		return PruneOutcome{}, err
	}
	sort.SliceStable(auto, func(i, j int) bool { return auto[i].Timestamp.After(auto[j].Timestamp) })
	var out PruneOutcome
	e.deleteAll(ctx, ref, auto, &out)
	return out, nil
}

func (e *Executor) automatic(ref Ref) ([]retention.Snapshot, error) {
	all, err := e.Client.ListSnapshots(ref.Project, ref.Instance)
	if err != nil {
		return nil, fmt.Errorf("list snapshots of %s: %w", ref, err)
	}
	var auto []retention.Snapshot
	for _, s := range all {
		c := snapname.Classify(e.Prefix, s.Name)
		if c.Manual() {
			continue
		}
		auto = append(auto, retention.Snapshot{Name: s.Name, Timestamp: c.Timestamp})
	}
	return auto, nil
}

func (e *Executor) deleteAll(ctx context.Context, ref Ref, del []retention.Snapshot, out *PruneOutcome) {
	for _, s := range del {
		if ctx.Err() != nil {
			out.Interrupted = true
			return
		}
		l := e.log(ref).WithFields(logrus.Fields{"snapshot": s.Name, "dry_run": e.DryRun})
		if !e.DryRun {
			if err := e.Client.DeleteSnapshot(ref.Project, ref.Instance, s.Name); err != nil {
				l.WithError(err).Warn("delete failed")
				out.Errors = append(out.Errors, &DeleteError{Snapshot: s.Name, Err: err})
				continue
			}
		}
		l.Debug("snapshot deleted")
		out.Deleted = append(out.Deleted, s)
		if e.AfterDelete != nil {
			e.AfterDelete(ref, s)
		}
	}
}

func (e *Executor) log(ref Ref) logrus.FieldLogger {
	l := e.Log
	if l == nil {
		l = logrus.StandardLogger()
	}
	return l.WithFields(logrus.Fields{"remote": ref.Remote, "project": ref.Project, "instance": ref.Instance})
}
