package incusapi

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrInjected is returned by FakeClient calls registered with FailOn.
var ErrInjected = errors.New("injected error")

// Op names a FakeClient operation for error injection.
type Op string

const (
	OpListProjects   Op = "list-projects"
	OpListInstances  Op = "list-instances"
	OpListSnapshots  Op = "list-snapshots"
	OpCreateSnapshot Op = "create-snapshot"
	OpDeleteSnapshot Op = "delete-snapshot"
)

// FakeClient is an in-memory implementation for unit tests.
type FakeClient struct {
	ServerVersionStr string

	// Now stamps CreatedAt of snapshots created through the client.
	Now func() time.Time

	mu        sync.Mutex
	projects  map[string]map[string]*fakeInstance
	failures  map[string]error
	mutations int
}

type fakeInstance struct {
	Instance
	snapshots []Snapshot
}

func NewFake() *FakeClient {
	return &FakeClient{
		Now:      time.Now,
		projects: map[string]map[string]*fakeInstance{},
		failures: map[string]error{},
	}
}

// AddProject registers an empty project.
func (f *FakeClient) AddProject(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[name]; !ok {
		f.projects[name] = map[string]*fakeInstance{}
	}
}

// AddInstance registers an instance (and its project) with existing snapshots.
func (f *FakeClient) AddInstance(project string, inst Instance, snapshots ...Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[project]; !ok {
		f.projects[project] = map[string]*fakeInstance{}
	}
	if inst.Status == "" {
		inst.Status = "Running"
	}
	f.projects[project][inst.Name] = &fakeInstance{Instance: inst, snapshots: append([]Snapshot(nil), snapshots...)}
}

// FailOn makes op fail with err for the given target. Empty project/instance/
// snapshot match any value.
func (f *FakeClient) FailOn(op Op, project, instance, snapshot string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	f.failures[failureKey(op, project, instance, snapshot)] = err
}

// Mutations returns how many create/delete calls reached the fake.
func (f *FakeClient) Mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

// SnapshotNames returns the snapshot names of an instance in creation order.
func (f *FakeClient) SnapshotNames(project, instance string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.projects[project][instance]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(inst.snapshots))
	for _, s := range inst.snapshots {
		out = append(out, s.Name)
	}
	return out
}

func (f *FakeClient) Server() (ServerInfo, error) {
	return ServerInfo{ServerVersion: f.ServerVersionStr}, nil
}

func (f *FakeClient) ListProjects() ([]Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(OpListProjects, "", "", ""); err != nil {
		return nil, err
	}
	out := make([]Project, 0, len(f.projects))
	for name := range f.projects {
		out = append(out, Project{Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeClient) ListInstances(project string) ([]Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(OpListInstances, project, "", ""); err != nil {
		return nil, err
	}
	insts, ok := f.projects[project]
	if !ok {
		return nil, &NotFoundError{Resource: "project", Name: project}
	}
	out := make([]Instance, 0, len(insts))
	for _, i := range insts {
		out = append(out, i.Instance)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeClient) ListSnapshots(project, instance string) ([]Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(OpListSnapshots, project, instance, ""); err != nil {
		return nil, err
	}
	inst, err := f.instance(project, instance)
	if err != nil {
		return nil, err
	}
	return append([]Snapshot(nil), inst.snapshots...), nil
}

func (f *FakeClient) CreateSnapshot(project, instance, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	if err := f.failure(OpCreateSnapshot, project, instance, name); err != nil {
		return err
	}
	inst, err := f.instance(project, instance)
	if err != nil {
		return err
	}
	for _, s := range inst.snapshots {
		if s.Name == name {
			// mimic Incus conflict
			return &ConflictError{Resource: "snapshot", Name: instance + "/" + name}
		}
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	inst.snapshots = append(inst.snapshots, Snapshot{Name: name, CreatedAt: now().UTC()})
	return nil
}

func (f *FakeClient) DeleteSnapshot(project, instance, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	if err := f.failure(OpDeleteSnapshot, project, instance, name); err != nil {
		return err
	}
	inst, err := f.instance(project, instance)
	if err != nil {
		return err
	}
	for idx, s := range inst.snapshots {
		if s.Name == name {
			inst.snapshots = append(inst.snapshots[:idx], inst.snapshots[idx+1:]...)
			return nil
		}
	}
	return &NotFoundError{Resource: "snapshot", Name: instance + "/" + name}
}

func (f *FakeClient) instance(project, instance string) (*fakeInstance, error) {
	insts, ok := f.projects[project]
	if !ok {
		return nil, &NotFoundError{Resource: "project", Name: project}
	}
	inst, ok := insts[instance]
	if !ok {
		return nil, &NotFoundError{Resource: "instance", Name: project + "/" + instance}
	}
	return inst, nil
}

// failure must be called with f.mu held.
func (f *FakeClient) failure(op Op, project, instance, snapshot string) error {
	for _, key := range []string{
		failureKey(op, project, instance, snapshot),
		failureKey(op, project, instance, ""),
		failureKey(op, project, "", ""),
		failureKey(op, "", "", ""),
	} {
		if err, ok := f.failures[key]; ok {
			return err
		}
	}
	return nil
}

func failureKey(op Op, project, instance, snapshot string) string {
	return string(op) + "|" + project + "|" + instance + "|" + snapshot
}
