// Package config loads and validates the incus-snapper configuration file.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"incus-snapper/src/snapname"
	"incus-snapper/src/target"
)

// EnvPrefix prefixes environment overrides, e.g. INCUS_SNAPPER_CONCURRENCY.
const EnvPrefix = "INCUS_SNAPPER"

// DefaultConcurrency bounds how many remotes are processed at once.
const DefaultConcurrency = 4

// Load reads the YAML configuration at path from fs, applies defaults and
// environment overrides and validates the result.
func Load(fs afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("snapshot-prefix", snapname.DefaultPrefix)
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("hooks.timeout", "10m")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		remoteFromString,
		mapstructure.StringToTimeDurationHookFunc(),
		stringToPatternList,
	))
	if err := v.UnmarshalExact(&cfg, hook); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// remoteFromString allows `remotes: [local, serverA]` shorthand entries.
func remoteFromString(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(Remote{}) {
		return data, nil
	}
	return Remote{Name: reflect.ValueOf(data).String()}, nil
}

// stringToPatternList turns a scalar pattern into a one-element list. Patterns
// are never split: a regular expression may contain commas.
func stringToPatternList(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
		return data, nil
	}
	s := strings.TrimSpace(reflect.ValueOf(data).String())
	if s == "" {
		return []string{}, nil
	}
	return []string{s}, nil
}

func (c *Config) applyDefaults() {
	if len(c.Remotes) == 0 {
		c.Remotes = []Remote{{Name: LocalRemote}}
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	for i := range c.Policies {
		if c.Policies[i].Name == "" {
			c.Policies[i].Name = fmt.Sprintf("policy-%d", i+1)
		}
	}
}

// Validate reports structural problems. Pattern compilation is checked by
// policy.New.
func (c *Config) Validate() error {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency))
	}
	if c.Hooks.Timeout < 0 {
		errs = append(errs, fmt.Errorf("hooks.timeout must not be negative"))
	}

	seen := map[string]bool{}
	for _, r := range c.Remotes {
		switch {
		case r.Name == "":
			errs = append(errs, errors.New("remote without a name"))
			continue
		case seen[r.Name]:
			errs = append(errs, fmt.Errorf("remote %q is listed twice", r.Name))
		}
		seen[r.Name] = true
		if r.Address == "" && r.Name != LocalRemote {
			errs = append(errs, fmt.Errorf("remote %q: address is required", r.Name))
			continue
		}
		if _, err := target.Parse(r.Address); err != nil {
			errs = append(errs, fmt.Errorf("remote %q: %w", r.Name, err))
		}
	}

	names := map[string]bool{}
	for _, p := range c.Policies {
		if names[p.Name] {
			errs = append(errs, fmt.Errorf("policy %q is defined twice", p.Name))
		}
		names[p.Name] = true
		if p.Retention != nil {
			if err := p.Retention.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("policy %q: %w", p.Name, err))
			}
		}
		if p.Exclude && p.Retention != nil {
			errs = append(errs, fmt.Errorf("policy %q: exclude and retention are mutually exclusive", p.Name))
		}
	}
	return errors.Join(errs...)
}

// RemoteNames returns the configured remote names in order.
func (c *Config) RemoteNames() []string {
	out := make([]string, 0, len(c.Remotes))
	for _, r := range c.Remotes {
		out = append(out, r.Name)
	}
	return out
}

// HasNonLocalRemotes reports whether any remote other than local is configured.
func (c *Config) HasNonLocalRemotes() bool {
	for _, r := range c.Remotes {
		if r.Name != LocalRemote {
			return true
		}
	}
	return false
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
