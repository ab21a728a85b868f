// Package orchestrator walks remotes, projects and instances and applies
// backup, prune or nuke to every instance the policy table selects.
//
// Remotes are processed concurrently, bounded by the configured concurrency;
// instances of one remote are processed one at a time. Each remote buffers its
// report, and buffers are flushed in configuration order once all remotes are
// done. A failing instance, project or remote is recorded in the RunResult and
// never stops its siblings.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"incus-snapper/src/config"
	"incus-snapper/src/hooks"
	"incus-snapper/src/incusapi"
	"incus-snapper/src/policy"
	"incus-snapper/src/retention"
	"incus-snapper/src/snapshots"
)

// Clock returns the current time. Runs read it once, at start.
type Clock func() time.Time

// Options configures an Orchestrator.
type Options struct {
	Config *config.Config
	Dialer incusapi.Dialer
	Clock  Clock
	DryRun bool

	// Stdout receives the human readable report; nil discards it.
	Stdout io.Writer
	Log    logrus.FieldLogger

	// HookExecutor runs hook commands; nil means hooks.ShellExecutor.
	HookExecutor hooks.Executor
}

// Orchestrator runs operations over the configured topology.
type Orchestrator struct {
	cfg      *config.Config
	dialer   incusapi.Dialer
	clock    Clock
	dryRun   bool
	out      io.Writer
	log      logrus.FieldLogger
	resolver *policy.Resolver
	hooks    *hooks.Runner

	concurrency int
}

// New compiles the policy table. Errors are configuration errors. A
// Concurrency below 1 means config.DefaultConcurrency.
func New(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("orchestrator: missing configuration")
	}
	if opts.Dialer == nil {
		return nil, fmt.Errorf("orchestrator: missing dialer")
	}
	resolver, err := policy.New(opts.Config.Policies)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:      opts.Config,
		dialer:   opts.Dialer,
		clock:    opts.Clock,
		dryRun:   opts.DryRun,
		out:      opts.Stdout,
		log:      opts.Log,
		resolver: resolver,
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	o.concurrency = opts.Config.Concurrency
	if o.concurrency < 1 {
		o.concurrency = config.DefaultConcurrency
	}
	if o.out == nil {
		o.out = io.Discard
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	o.hooks = hooks.NewRunner(opts.Config.Hooks, opts.HookExecutor, o.log)
	return o, nil
}

// Resolver exposes the compiled policy table.
func (o *Orchestrator) Resolver() *policy.Resolver { return o.resolver }

// connect dials every remote up front so an unreachable remote aborts the
// run before anything is mutated.
func (o *Orchestrator) connect() ([]incusapi.Client, error) {
	clients := make([]incusapi.Client, 0, len(o.cfg.Remotes))
	for _, r := range o.cfg.Remotes {
		c, err := o.dialer.Dial(r)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, nil
}

// applyFunc processes one included instance.
type applyFunc func(ctx context.Context, w *worker, ref snapshots.Ref, d policy.Decision)

type runSpec struct {
	kind      Kind
	title     string
	started   hooks.Event
	completed hooks.Event
	apply     applyFunc
}

func (o *Orchestrator) run(ctx context.Context, spec runSpec) (*RunResult, error) {
	clients, err := o.connect()
	if err != nil {
		return nil, err
	}

	res := &RunResult{
		RunID:     uuid.NewString(),
		Kind:      spec.kind,
		DryRun:    o.dryRun,
		StartedAt: o.clock(),
	}
	log := o.log.WithFields(logrus.Fields{"run_id": res.RunID, "kind": string(spec.kind), "dry_run": o.dryRun})
	log.Info("run started")

	if err := o.hooks.Fire(ctx, spec.started, o.hookContext(res)); err != nil {
		res.HookErrors = append(res.HookErrors, err)
	}

	workers := make([]*worker, len(clients))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, remote := range o.cfg.Remotes {
		w := &worker{
			o:      o,
			remote: remote,
			client: clients[i],
			runID:  res.RunID,
			kind:   spec.kind,
			now:    res.StartedAt,
			apply:  spec.apply,
			log:    log.WithField("remote", remote.Name),
			rec:    RemoteResult{Remote: remote.Name},
		}
		w.exec = &snapshots.Executor{
			Client: w.client,
			Prefix: o.cfg.SnapshotPrefix,
			DryRun: o.dryRun,
			Log:    w.log,
		}
		workers[i] = w
		g.Go(func() error {
			w.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if o.dryRun {
		fmt.Fprintln(o.out, DryRunMarker)
		fmt.Fprintln(o.out)
	}
	fmt.Fprintln(o.out, spec.title)
	for _, w := range workers {
		_, _ = o.out.Write(w.buf.Bytes())
		res.add(w.rec)
	}
	res.WriteSummary(o.out)

	// The completion hook runs even when the run was interrupted.
	if err := o.hooks.Fire(context.WithoutCancel(ctx), spec.completed, o.hookContext(res)); err != nil {
		res.HookErrors = append(res.HookErrors, err)
	}
	log.WithFields(logrus.Fields{
		"processed": res.InstancesProcessed,
		"created":   res.SnapshotsCreated,
		"deleted":   res.SnapshotsDeleted,
		"kept":      res.SnapshotsKept,
		"errors":    len(res.Errors),
	}).Info("run finished")
	return res, nil
}

func (o *Orchestrator) hookContext(res *RunResult) hooks.Context {
	return hooks.Context{
		RunID:     res.RunID,
		Kind:      string(res.Kind),
		DryRun:    res.DryRun,
		Processed: res.InstancesProcessed,
		Created:   res.SnapshotsCreated,
		Deleted:   res.SnapshotsDeleted,
		Kept:      res.SnapshotsKept,
	}
}

// worker owns everything touched while processing one remote.
type worker struct {
	o      *Orchestrator
	remote config.Remote
	client incusapi.Client
	exec   *snapshots.Executor
	runID  string
	kind   Kind
	now    time.Time
	apply  applyFunc
	log    logrus.FieldLogger

	buf bytes.Buffer
	rec RemoteResult
}

func (w *worker) printf(format string, args ...any) {
	fmt.Fprintf(&w.buf, format, args...)
}

func (w *worker) label(ref snapshots.Ref) string {
	if w.o.cfg.HasNonLocalRemotes() {
		return ref.Remote + ":" + ref.Project + "/" + ref.Instance
	}
	return ref.Project + "/" + ref.Instance
}

func (w *worker) run(ctx context.Context) {
	w.exec.AfterDelete = func(ref snapshots.Ref, s retention.Snapshot) {
		w.rec.SnapshotsDeleted++
		w.printf("-> deleting snapshot: %s [ OK ]\n", s.Name)
		w.fire(context.WithoutCancel(ctx), hooks.SnapshotDeleted, ref, s.Name)
	}
	projects, err := w.client.ListProjects()
	if err != nil {
		w.record(&ItemError{Remote: w.remote.Name, Op: "list projects", Err: err})
		w.printf("\n- %s\n-> [ FAILED ]\n   error: %v\n", w.remote.Name, err)
		return
	}
	for _, p := range projects {
		instances, err := w.client.ListInstances(p.Name)
		if err != nil {
			w.record(&ItemError{Remote: w.remote.Name, Project: p.Name, Op: "list instances", Err: err})
			w.printf("\n- %s:%s\n-> [ FAILED ]\n   error: %v\n", w.remote.Name, p.Name, err)
			continue
		}
		for _, inst := range instances {
			if ctx.Err() != nil {
				w.rec.Cancelled = true
				return
			}
			ref := snapshots.Ref{Remote: w.remote.Name, Project: p.Name, Instance: inst.Name}
			d := w.o.resolver.Resolve(policy.Subject{
				Remote:   ref.Remote,
				Project:  ref.Project,
				Instance: ref.Instance,
				Status:   inst.Status,
			})
			w.printf("\n- %s\n", w.label(ref))
			if d.Excluded {
				w.rec.InstancesExcluded++
				w.printf("-> [ EXCLUDED ]\n")
				continue
			}
			w.rec.InstancesProcessed++
			w.fire(ctx, hooks.InstanceStarted, ref, "")
			w.apply(ctx, w, ref, d)
			w.fire(context.WithoutCancel(ctx), hooks.InstanceCompleted, ref, "")
		}
	}
}

func (w *worker) record(e *ItemError) {
	w.log.WithError(e.Err).WithField("item", e.Path()).Warn(e.Op + " failed")
	w.rec.Errors = append(w.rec.Errors, e)
}

func (w *worker) fire(ctx context.Context, ev hooks.Event, ref snapshots.Ref, snapshot string) {
	err := w.o.hooks.Fire(ctx, ev, hooks.Context{
		RunID:     w.runID,
		Kind:      string(w.kind),
		DryRun:    w.o.dryRun,
		Remote:    ref.Remote,
		Project:   ref.Project,
		Instance:  ref.Instance,
		Snapshot:  snapshot,
		Processed: w.rec.InstancesProcessed,
		Created:   w.rec.SnapshotsCreated,
		Deleted:   w.rec.SnapshotsDeleted,
		Kept:      w.rec.SnapshotsKept,
	})
	if err != nil {
		w.rec.HookErrors = append(w.rec.HookErrors, err)
	}
}
