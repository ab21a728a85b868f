// Package hooks runs the user's shell commands around backup and prune.
//
// Every invocation receives an explicit Context: it is rendered into the
// command's {{placeholders}} and exported as INCUS_SNAPPER_* variables. A
// failing hook is logged and reported to the caller, never retried.
package hooks

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"incus-snapper/src/config"
)

// Event names a hook point. The values match the configuration keys.
type Event string

const (
	BackupStarted     Event = "on-backup-started"
	SnapshotCreated   Event = "on-snapshot-created"
	BackupCompleted   Event = "on-backup-completed"
	PruneStarted      Event = "on-prune-started"
	SnapshotDeleted   Event = "on-snapshot-deleted"
	PruneCompleted    Event = "on-prune-completed"
	InstanceStarted   Event = "on-instance-started"
	InstanceCompleted Event = "on-instance-completed"
)

// Context is everything a hook learns about the run.
type Context struct {
	RunID  string
	Kind   string
	DryRun bool

	Remote   string
	Project  string
	Instance string
	Snapshot string

	// Counters so far.
	Processed int
	Created   int
	Deleted   int
	Kept      int
}

// Env returns the context as environment assignments.
func (c Context) Env() []string {
	return []string{
		"INCUS_SNAPPER_RUN_ID=" + c.RunID,
		"INCUS_SNAPPER_KIND=" + c.Kind,
		"INCUS_SNAPPER_DRY_RUN=" + strconv.FormatBool(c.DryRun),
		"INCUS_SNAPPER_REMOTE=" + c.Remote,
		"INCUS_SNAPPER_PROJECT=" + c.Project,
		"INCUS_SNAPPER_INSTANCE=" + c.Instance,
		"INCUS_SNAPPER_SNAPSHOT=" + c.Snapshot,
		"INCUS_SNAPPER_PROCESSED=" + strconv.Itoa(c.Processed),
		"INCUS_SNAPPER_CREATED=" + strconv.Itoa(c.Created),
		"INCUS_SNAPPER_DELETED=" + strconv.Itoa(c.Deleted),
		"INCUS_SNAPPER_KEPT=" + strconv.Itoa(c.Kept),
	}
}

// Render substitutes {{remoteName}}, {{projectName}}, {{instanceName}} and
// {{snapshotName}} in cmd.
func Render(cmd string, c Context) string {
	return strings.NewReplacer(
		"{{remoteName}}", c.Remote,
		"{{projectName}}", c.Project,
		"{{instanceName}}", c.Instance,
		"{{snapshotName}}", c.Snapshot,
	).Replace(cmd)
}

// Executor runs one shell command and returns its combined output.
type Executor interface {
	Run(ctx context.Context, command string, env []string) ([]byte, error)
}

// ShellExecutor runs commands through `sh -c`.
type ShellExecutor struct {
	// Shell defaults to "sh".
	Shell string
}

func (s ShellExecutor) Run(ctx context.Context, command string, env []string) ([]byte, error) {
	shell := s.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Env = append(os.Environ(), env...)
	// Background children may keep the output pipe open after sh is killed.
	cmd.WaitDelay = time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Error is a failed hook invocation.
type Error struct {
	Event   Event
	Command string
	Err     error
}

func (e *Error) Error() string { return fmt.Sprintf("hook %s failed: %v", e.Event, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Runner fires configured hooks.
type Runner struct {
	hooks config.Hooks
	exec  Executor
	log   logrus.FieldLogger
}

// NewRunner returns a Runner for h. A nil ex means ShellExecutor.
func NewRunner(h config.Hooks, ex Executor, log logrus.FieldLogger) *Runner {
	if ex == nil {
		ex = ShellExecutor{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{hooks: h, exec: ex, log: log}
}

// Command returns the configured command for ev, or "".
func (r *Runner) Command(ev Event) string {
	switch ev {
	case BackupStarted:
		return r.hooks.OnBackupStarted
	case SnapshotCreated:
		return r.hooks.OnSnapshotCreated
	case BackupCompleted:
		return r.hooks.OnBackupCompleted
	case PruneStarted:
		return r.hooks.OnPruneStarted
	case SnapshotDeleted:
		return r.hooks.OnSnapshotDeleted
	case PruneCompleted:
		return r.hooks.OnPruneCompleted
	case InstanceStarted:
		return r.hooks.OnInstanceStarted
	case InstanceCompleted:
		return r.hooks.OnInstanceCompleted
	}
	return ""
}

// Fire runs the hook for ev, if any. Output is logged line by line. The
// returned error is an *Error and has already been logged.
func (r *Runner) Fire(ctx context.Context, ev Event, hc Context) error {
	raw := r.Command(ev)
	if raw == "" {
		return nil
	}
	command := Render(raw, hc)
	l := r.log.WithFields(logrus.Fields{"hook": string(ev), "dry_run": hc.DryRun})
	if hc.Instance != "" {
		l = l.WithFields(logrus.Fields{"remote": hc.Remote, "project": hc.Project, "instance": hc.Instance})
	}

	if r.hooks.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.hooks.Timeout)
		defer cancel()
	}
	started := time.Now()
	out, err := r.exec.Run(ctx, command, hc.Env())

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		l.Info(sc.Text())
	}
	if err == nil {
		l.WithField("took", time.Since(started).Round(time.Millisecond)).Debug("hook finished")
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", r.hooks.Timeout, err)
	}
	herr := &Error{Event: ev, Command: command, Err: err}
	l.WithError(err).Error("hook failed")
	return herr
}
