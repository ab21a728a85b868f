package incusapi

import (
	"fmt"
	"sync"

	incuscli "github.com/lxc/incus/client"
	"github.com/spf13/afero"

	"incus-snapper/src/config"
	"incus-snapper/src/target"
)

// Dialer opens a Client for a configured remote.
type Dialer interface {
	Dial(remote config.Remote) (Client, error)
}

// RealDialer connects to Incus servers over the unix socket or HTTPS.
type RealDialer struct {
	// Fs is used to read TLS material; nil means the OS filesystem.
	Fs        afero.Fs
	UserAgent string
}

func (d RealDialer) Dial(remote config.Remote) (Client, error) {
	t, err := target.Parse(remote.Address)
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", remote.Name, err)
	}
	args := &incuscli.ConnectionArgs{UserAgent: d.UserAgent}

	if t.Scheme == "unix" {
		c, err := ConnectUnix(t.SocketPath, args)
		if err != nil {
			return nil, fmt.Errorf("remote %s: connect %s: %w", remote.Name, t, err)
		}
		return c, nil
	}

	fs := d.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	for _, f := range []struct {
		path string
		dst  *string
	}{
		{remote.ClientCert, &args.TLSClientCert},
		{remote.ClientKey, &args.TLSClientKey},
		{remote.ServerCert, &args.TLSServerCert},
	} {
		if f.path == "" {
			continue
		}
		b, err := afero.ReadFile(fs, f.path)
		if err != nil {
			return nil, fmt.Errorf("remote %s: %w", remote.Name, err)
		}
		*f.dst = string(b)
	}
	args.InsecureSkipVerify = remote.Insecure

	c, err := ConnectHTTPS(t.URL, args)
	if err != nil {
		return nil, fmt.Errorf("remote %s: connect %s: %w", remote.Name, t, err)
	}
	return c, nil
}

// FakeDialer hands out pre-registered clients by remote name.
type FakeDialer struct {
	mu      sync.Mutex
	clients map[string]Client
	dialed  []string
}

func NewFakeDialer() *FakeDialer {
	return &FakeDialer{clients: map[string]Client{}}
}

// Register makes Dial return c for the remote named name.
func (d *FakeDialer) Register(name string, c Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[name] = c
}

func (d *FakeDialer) Dial(remote config.Remote) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, remote.Name)
	c, ok := d.clients[remote.Name]
	if !ok {
		return nil, fmt.Errorf("remote %s: connection refused", remote.Name)
	}
	return c, nil
}

// Dialed returns the remote names passed to Dial so far.
func (d *FakeDialer) Dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dialed...)
}
