// Package policy maps instances to the retention rule that governs them.
//
// Rules are evaluated in configuration order and the first rule matching the
// (remote, project, instance, status) subject wins. Instances matched by no
// rule, or by a rule with exclude set, are excluded from backup and prune.
package policy

import (
	"fmt"
	"strings"

	"incus-snapper/src/config"
	"incus-snapper/src/retention"
)

// Subject identifies the instance being resolved.
type Subject struct {
	Remote   string
	Project  string
	Instance string
	Status   string
}

// Decision is the outcome of Resolve.
type Decision struct {
	// Rule is the name of the matching rule; empty when nothing matched.
	Rule      string
	Excluded  bool
	Retention retention.Policy
}

type rule struct {
	name      string
	exclude   bool
	retention retention.Policy

	remotes, projects, instances, statuses         MatcherSet
	exRemotes, exProjects, exInstances, exStatuses MatcherSet
}

// Resolver holds a compiled, immutable rule table. It is safe for concurrent use.
type Resolver struct {
	rules []rule
}

// New compiles rules. Errors are configuration errors.
func New(rules []config.Rule) (*Resolver, error) {
	r := &Resolver{rules: make([]rule, 0, len(rules))}
	for i, cr := range rules {
		name := cr.Name
		if name == "" {
			name = fmt.Sprintf("policy-%d", i+1)
		}
		compiled := rule{name: name, exclude: cr.Exclude}
		if cr.Retention != nil {
			if err := cr.Retention.Validate(); err != nil {
				return nil, fmt.Errorf("policy %q: %w", name, err)
			}
			compiled.retention = *cr.Retention
		}

		var err error
		for _, f := range []struct {
			dst      *MatcherSet
			patterns []string
			fold     bool
		}{
			{&compiled.remotes, cr.Remotes, false},
			{&compiled.projects, cr.Projects, false},
			{&compiled.instances, cr.Instances, false},
			{&compiled.statuses, cr.Statuses, true},
			{&compiled.exRemotes, cr.ExcludedRemotes, false},
			{&compiled.exProjects, cr.ExcludedProjects, false},
			{&compiled.exInstances, cr.ExcludedInstances, false},
			{&compiled.exStatuses, cr.ExcludedStatuses, true},
		} {
			if *f.dst, err = CompileAll(f.patterns, f.fold); err != nil {
				return nil, fmt.Errorf("policy %q: %w", name, err)
			}
		}
		r.rules = append(r.rules, compiled)
	}
	return r, nil
}

func (r rule) matches(s Subject) bool {
	status := strings.ToLower(s.Status)
	return r.remotes.Includes(s.Remote) && !r.exRemotes.Any(s.Remote) &&
		r.projects.Includes(s.Project) && !r.exProjects.Any(s.Project) &&
		r.instances.Includes(s.Instance) && !r.exInstances.Any(s.Instance) &&
		r.statuses.Includes(status) && !r.exStatuses.Any(status)
}

// Resolve returns the decision of the first matching rule.
func (r *Resolver) Resolve(s Subject) Decision {
	for _, ru := range r.rules {
		if !ru.matches(s) {
			continue
		}
		if ru.exclude {
			return Decision{Rule: ru.name, Excluded: true}
		}
		return Decision{Rule: ru.name, Retention: ru.retention}
	}
	return Decision{Excluded: true}
}

// Matching returns the names of every rule matching s, in order.
func (r *Resolver) Matching(s Subject) []string {
	var out []string
	for _, ru := range r.rules {
		if ru.matches(s) {
			out = append(out, ru.name)
		}
	}
	return out
}

// Len returns the number of rules.
func (r *Resolver) Len() int { return len(r.rules) }
