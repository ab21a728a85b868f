package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Kind names the operation of a run.
type Kind string

const (
	KindBackup Kind = "backup"
	KindPrune  Kind = "prune"
	KindNuke   Kind = "nuke"
)

// DryRunMarker is printed at the top of every dry-run report.
const DryRunMarker = "Note: --dry-run is active, no changes will be applied"

var (
	// ErrPartialFailure is returned by RunResult.Err when any instance,
	// project or remote failed.
	ErrPartialFailure = errors.New("some instances could not be processed")
	// ErrCancelled is returned by RunResult.Err when the run was interrupted.
	ErrCancelled = errors.New("run was cancelled before all instances were processed")
)

// ItemError is a failure recorded against one remote, project, instance or
// snapshot. Siblings are processed regardless.
type ItemError struct {
	Remote   string
	Project  string
	Instance string
	Snapshot string
	Op       string
	Err      error
}

// Path renders the failing item as remote[:project[/instance[@snapshot]]].
func (e *ItemError) Path() string {
	p := e.Remote
	if e.Project != "" {
		p += ":" + e.Project
	}
	if e.Instance != "" {
		p += "/" + e.Instance
	}
	if e.Snapshot != "" {
		p += "@" + e.Snapshot
	}
	return p
}

func (e *ItemError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path(), e.Err) }
func (e *ItemError) Unwrap() error { return e.Err }

// RemoteResult holds the counters of a single remote.
type RemoteResult struct {
	Remote string

	InstancesProcessed int
	InstancesExcluded  int
	SnapshotsCreated   int
	SnapshotsDeleted   int
	SnapshotsKept      int

	Errors     []*ItemError
	HookErrors []error
	Cancelled  bool
}

// RunResult aggregates a whole run. It is not modified after the Run* call
// that produced it returns.
type RunResult struct {
	RunID     string
	Kind      Kind
	DryRun    bool
	StartedAt time.Time

	InstancesProcessed int
	InstancesExcluded  int
	SnapshotsCreated   int
	SnapshotsDeleted   int
	SnapshotsKept      int

	Errors     []*ItemError
	HookErrors []error
	Cancelled  bool

	// Remotes holds per-remote records in configuration order.
	Remotes []RemoteResult
}

func (r *RunResult) add(rr RemoteResult) {
	r.InstancesProcessed += rr.InstancesProcessed
	r.InstancesExcluded += rr.InstancesExcluded
	r.SnapshotsCreated += rr.SnapshotsCreated
	r.SnapshotsDeleted += rr.SnapshotsDeleted
	r.SnapshotsKept += rr.SnapshotsKept
	r.Errors = append(r.Errors, rr.Errors...)
	r.HookErrors = append(r.HookErrors, rr.HookErrors...)
	r.Cancelled = r.Cancelled || rr.Cancelled
	r.Remotes = append(r.Remotes, rr)
}

// Err returns nil for a clean run. Otherwise it wraps ErrPartialFailure
// together with every item error, and ErrCancelled if the run was interrupted.
// Hook failures never make a run fail.
func (r *RunResult) Err() error {
	var errs []error
	if len(r.Errors) > 0 {
		items := make([]error, 0, len(r.Errors))
		for _, e := range r.Errors {
			items = append(items, e)
		}
		errs = append(errs, fmt.Errorf("%w: %w", ErrPartialFailure, errors.Join(items...)))
	}
	if r.Cancelled {
		errs = append(errs, ErrCancelled)
	}
	return errors.Join(errs...)
}

// WriteSummary prints the counters greppable by downstream tooling.
func (r *RunResult) WriteSummary(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary")
	fmt.Fprintf(w, "- processed instances: %d\n", r.InstancesProcessed)
	switch r.Kind {
	case KindBackup:
		fmt.Fprintf(w, "- created snapshots: %d\n", r.SnapshotsCreated)
	case KindPrune:
		fmt.Fprintf(w, "- deleted snapshots: %d\n", r.SnapshotsDeleted)
		fmt.Fprintf(w, "- kept snapshots: %d\n", r.SnapshotsKept)
	case KindNuke:
		fmt.Fprintf(w, "- deleted snapshots: %d\n", r.SnapshotsDeleted)
	}
	if n := len(r.Errors); n > 0 {
		fmt.Fprintf(w, "- errors: %d\n", n)
	}
	if n := len(r.HookErrors); n > 0 {
		fmt.Fprintf(w, "- failed hooks: %d\n", n)
	}
	if r.Cancelled {
		fmt.Fprintln(w, "- cancelled: some instances were not processed")
	}
}
