package incusapi

import (
	"fmt"
	"net/http"

	incuscli "github.com/lxc/incus/client"
	"github.com/lxc/incus/shared/api"
)

// RealClient wraps the official Incus Go client.
type RealClient struct {
	c incuscli.InstanceServer
}

// NewRealClient wraps an already connected Incus server.
func NewRealClient(c incuscli.InstanceServer) *RealClient {
	return &RealClient{c: c}
}

// ConnectUnix connects through a unix socket; an empty path means the
// default Incus socket.
func ConnectUnix(socket string, args *incuscli.ConnectionArgs) (*RealClient, error) {
	c, err := incuscli.ConnectIncusUnix(socket, args)
	if err != nil {
		return nil, err
	}
	return NewRealClient(c), nil
}

// ConnectHTTPS connects to a remote Incus API endpoint.
func ConnectHTTPS(url string, args *incuscli.ConnectionArgs) (*RealClient, error) {
	c, err := incuscli.ConnectIncus(url, args)
	if err != nil {
		return nil, err
	}
	return NewRealClient(c), nil
}

func (r *RealClient) Server() (ServerInfo, error) {
	s, _, err := r.c.GetServer()
	if err != nil {
		return ServerInfo{}, err
	}
	return ServerInfo{ServerVersion: s.Environment.ServerVersion}, nil
}

func (r *RealClient) ListProjects() ([]Project, error) {
	prjs, err := r.c.GetProjects()
	if err != nil {
		return nil, err
	}
	out := make([]Project, 0, len(prjs))
	for _, p := range prjs {
		out = append(out, Project{Name: p.Name})
	}
	return out, nil
}

func (r *RealClient) ListInstances(project string) ([]Instance, error) {
	insts, err := r.c.UseProject(project).GetInstances(api.InstanceTypeAny)
	if err != nil {
		return nil, mapError(err, "project", project)
	}
	out := make([]Instance, 0, len(insts))
	for _, i := range insts {
		out = append(out, Instance{Name: i.Name, Status: i.Status})
	}
	return out, nil
}

func (r *RealClient) ListSnapshots(project, instance string) ([]Snapshot, error) {
	snaps, err := r.c.UseProject(project).GetInstanceSnapshots(instance)
	if err != nil {
		return nil, mapError(err, "instance", project+"/"+instance)
	}
	out := make([]Snapshot, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, Snapshot{Name: s.Name, CreatedAt: s.CreatedAt})
	}
	return out, nil
}

func (r *RealClient) CreateSnapshot(project, instance, name string) error {
	op, err := r.c.UseProject(project).CreateInstanceSnapshot(instance, api.InstanceSnapshotsPost{Name: name})
	if err == nil {
		err = op.Wait()
	}
	if err != nil {
		return mapError(err, "snapshot", project+"/"+instance+"/"+name)
	}
	return nil
}

func (r *RealClient) DeleteSnapshot(project, instance, name string) error {
	op, err := r.c.UseProject(project).DeleteInstanceSnapshot(instance, name)
	if err == nil {
		err = op.Wait()
	}
	if err != nil {
		return mapError(err, "snapshot", project+"/"+instance+"/"+name)
	}
	return nil
}

// mapError turns Incus status errors into our typed errors.
func mapError(err error, resource, name string) error {
	switch {
	case api.StatusErrorCheck(err, http.StatusNotFound):
		return fmt.Errorf("%w: %v", &NotFoundError{Resource: resource, Name: name}, err)
	case api.StatusErrorCheck(err, http.StatusConflict):
		return fmt.Errorf("%w: %v", &ConflictError{Resource: resource, Name: name}, err)
	}
	return err
}
