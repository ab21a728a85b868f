package incusapi

import (
	"errors"
	"time"
)

// Project models a minimal Incus project for our purposes.
type Project struct {
	Name string
}

// Instance is a container or VM inside a project.
type Instance struct {
	Name   string
	Status string
}

// Snapshot is an instance snapshot as reported by the server.
type Snapshot struct {
	Name      string
	CreatedAt time.Time
}

// ServerInfo exposes key server metadata we care about.
type ServerInfo struct {
	ServerVersion string
}

// Client is a narrow interface over the Incus API used by our app.
// Keep it small and focused on what we actually need so it stays mockable.
// A Client is bound to a single remote.
type Client interface {
	// Server
	Server() (ServerInfo, error)

	// Topology
	ListProjects() ([]Project, error)
	ListInstances(project string) ([]Instance, error)

	// Snapshots
	ListSnapshots(project, instance string) ([]Snapshot, error)
	CreateSnapshot(project, instance, name string) error
	DeleteSnapshot(project, instance, name string) error
}

type ConflictError struct{ Resource, Name string }

func (e *ConflictError) Error() string { return e.Resource + " conflict: " + e.Name }

type NotFoundError struct{ Resource, Name string }

func (e *NotFoundError) Error() string { return e.Resource + " not found: " + e.Name }

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
