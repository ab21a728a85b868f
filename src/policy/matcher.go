package policy

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// RegexPrefix marks a pattern as a regular expression.
const RegexPrefix = "re:"

// Matcher is a compiled name pattern.
type Matcher interface {
	Match(name string) bool
	String() string
}

type exactMatcher string

func (m exactMatcher) Match(name string) bool { return string(m) == name }
func (m exactMatcher) String() string { return string(m) }

type globMatcher string

func (m globMatcher) Match(name string) bool {
	ok, _ := path.Match(string(m), name)
	return ok
}
func (m globMatcher) String() string { return string(m) }

type regexMatcher struct {
	raw string
	re  *regexp.Regexp
}

func (m regexMatcher) Match(name string) bool { return m.re.MatchString(name) }
func (m regexMatcher) String() string { return RegexPrefix + m.raw }

// Compile turns a pattern into a Matcher. "re:<expr>" is a regular expression
// that must match the whole name; patterns containing *, ? or [ are globs;
// everything else matches literally.
func Compile(pattern string) (Matcher, error) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	if raw, ok := strings.CutPrefix(p, RegexPrefix); ok {
		re, err := regexp.Compile("^(?:" + raw + ")$")
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		return regexMatcher{raw: raw, re: re}, nil
	}
	if strings.ContainsAny(p, "*?[") {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		return globMatcher(p), nil
	}
	return exactMatcher(p), nil
}

// MatcherSet matches when any of its matchers does.
type MatcherSet []Matcher

// CompileAll compiles every pattern; fold lowercases patterns for
// case-insensitive matching (callers lowercase the subject too).
func CompileAll(patterns []string, fold bool) (MatcherSet, error) {
	set := make(MatcherSet, 0, len(patterns))
	for _, p := range patterns {
		if fold {
			if raw, ok := strings.CutPrefix(strings.TrimSpace(p), RegexPrefix); ok {
				p = RegexPrefix + "(?i)" + raw
			} else {
				p = strings.ToLower(p)
			}
		}
		m, err := Compile(p)
		if err != nil {
			return nil, err
		}
		set = append(set, m)
	}
	return set, nil
}

// Any reports whether name matches at least one matcher.
func (s MatcherSet) Any(name string) bool {
	for _, m := range s {
		if m.Match(name) {
			return true
		}
	}
	return false
}

// Includes is Any, except that an empty set includes everything.
func (s MatcherSet) Includes(name string) bool {
	return len(s) == 0 || s.Any(name)
}
