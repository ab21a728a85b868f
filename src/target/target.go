package target

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// DefaultPort is the Incus HTTPS API port used when an address omits it.
const DefaultPort = "8443"

// Target represents a parsed remote endpoint.
// Examples: unix:, unix:///var/lib/incus/unix.socket, https://10.0.0.2:8443
type Target struct {
	// Raw is the original input string.
	Raw string
	// Scheme is either "unix" or "https".
	Scheme string
	// SocketPath is set for unix targets; empty means the default socket.
	SocketPath string
	// URL is set for https targets, always with an explicit port.
	URL string
}

// SupportedSchemes lists the schemes the parser accepts.
var SupportedSchemes = map[string]struct{}{
	"unix":  {},
	"https": {},
}

// Parse parses a remote address. An empty address means the local unix
// socket; a bare host (optionally with port) means https.
func Parse(raw string) (Target, error) {
	t := Target{Raw: raw}
	s := strings.TrimSpace(raw)
	if s == "" || s == "unix:" || s == "unix://" {
		t.Scheme = "unix"
		return t, nil
	}
	if !strings.Contains(s, "://") && !strings.HasPrefix(s, "unix:") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return t, fmt.Errorf("invalid remote address %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if !IsSupported(scheme) {
		return t, fmt.Errorf("unsupported remote scheme %q", scheme)
	}
	t.Scheme = scheme

	switch scheme {
	case "unix":
		if u.Host != "" {
			return t, fmt.Errorf("unix socket path must be absolute: %q", raw)
		}
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		if p != "" {
			clean := filepath.Clean(p)
			if !filepath.IsAbs(clean) {
				return t, fmt.Errorf("unix socket path must be absolute: %q", p)
			}
			t.SocketPath = clean
		}
	case "https":
		if u.Host == "" {
			return t, fmt.Errorf("remote address %q has no host", raw)
		}
		host := u.Host
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(strings.Trim(host, "[]"), DefaultPort)
		}
		t.URL = "https://" + host
	}
	return t, nil
}

// IsSupported returns true if the scheme is recognized.
func IsSupported(scheme string) bool {
	_, ok := SupportedSchemes[strings.ToLower(scheme)]
	return ok
}

// String returns a canonical string form of the target.
func (t Target) String() string {
	switch t.Scheme {
	case "unix":
		if t.SocketPath == "" {
			return "unix:"
		}
		return "unix://" + t.SocketPath
	case "https":
		return t.URL
	}
	return t.Raw
}
