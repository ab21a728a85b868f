// Package retention decides which automatic snapshots survive a prune.
//
// The evaluator implements a generalized grandfather-father-son scheme: every
// bucket kind (last, hourly, daily, weekly, monthly, yearly) walks the
// snapshots newest-first and retains the newest snapshot of each bucket it has
// not seen yet, until its keep count is exhausted. A snapshot survives when at
// least one bucket kind retains it.
//
// Buckets are calendar periods in the location of the evaluation time; weeks
// are ISO weeks (Monday first).
package retention

import (
	"fmt"
	"sort"
	"time"
)

// Kind names a bucket granularity, or another reason a snapshot is kept.
type Kind string

const (
	KindLast    Kind = "last"
	KindHourly  Kind = "hourly"
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
	KindYearly  Kind = "yearly"

	// KindFuture marks snapshots whose timestamp lies after the evaluation
	// time. They are always kept and do not use up any bucket.
	KindFuture Kind = "future"
)

// Bucket is a single (kind, keep count) pair of a policy.
type Bucket struct {
	Kind Kind
	Keep int
}

// Policy is a retention specification. A zero Policy keeps nothing.
type Policy struct {
	KeepLast    int `mapstructure:"keep-last" yaml:"keep-last,omitempty" json:"keepLast,omitempty"`
	KeepHourly  int `mapstructure:"keep-hourly" yaml:"keep-hourly,omitempty" json:"keepHourly,omitempty"`
	KeepDaily   int `mapstructure:"keep-daily" yaml:"keep-daily,omitempty" json:"keepDaily,omitempty"`
	KeepWeekly  int `mapstructure:"keep-weekly" yaml:"keep-weekly,omitempty" json:"keepWeekly,omitempty"`
	KeepMonthly int `mapstructure:"keep-monthly" yaml:"keep-monthly,omitempty" json:"keepMonthly,omitempty"`
	KeepYearly  int `mapstructure:"keep-yearly" yaml:"keep-yearly,omitempty" json:"keepYearly,omitempty"`

	// KeepLimit caps the total number of kept snapshots; nil means no cap.
	// A cap below 1 is rejected by Validate and ignored by Evaluate, so the
	// newest snapshot always survives a non-empty policy.
	KeepLimit *int `mapstructure:"keep-limit" yaml:"keep-limit,omitempty" json:"keepLimit,omitempty"`
}

// Buckets returns the policy's buckets in evaluation order, including the ones
// with a zero keep count.
func (p Policy) Buckets() []Bucket {
	return []Bucket{
		{KindLast, p.KeepLast},
		{KindHourly, p.KeepHourly},
		{KindDaily, p.KeepDaily},
		{KindWeekly, p.KeepWeekly},
		{KindMonthly, p.KeepMonthly},
		{KindYearly, p.KeepYearly},
	}
}

// Empty reports whether the policy retains nothing at all.
func (p Policy) Empty() bool {
	for _, b := range p.Buckets() {
		if b.Keep > 0 {
			return false
		}
	}
	return true
}

// Validate rejects negative keep counts and a keep-limit below 1.
func (p Policy) Validate() error {
	for _, b := range p.Buckets() {
		if b.Keep < 0 {
			return fmt.Errorf("keep-%s must be >= 0, got %d", b.Kind, b.Keep)
		}
	}
	if p.KeepLimit != nil && *p.KeepLimit < 1 {
		return fmt.Errorf("keep-limit must be >= 1, got %d", *p.KeepLimit)
	}
	return nil
}

// Snapshot is an automatic snapshot subject to retention.
type Snapshot struct {
	Name      string
	Timestamp time.Time
}

// Result is the outcome of Evaluate. Keep and Delete are ordered newest first
// and together contain every evaluated snapshot exactly once.
type Result struct {
	Keep   []Snapshot
	Delete []Snapshot

	// Reasons lists, per kept snapshot name, the kinds that retained it.
	Reasons map[string][]Kind
}

// Evaluate splits snapshots into the ones to keep and the ones to delete.
//
// Snapshots sharing a timestamp keep their input order; that is the only
// tie-break that is not chronological.
func Evaluate(p Policy, snapshots []Snapshot, now time.Time) Result {
	res := Result{Reasons: map[string][]Kind{}}
	if len(snapshots) == 0 {
		return res
	}

	sorted := make([]Snapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	reasons := make([][]Kind, len(sorted))
	for i, s := range sorted {
		if s.Timestamp.After(now) {
			reasons[i] = append(reasons[i], KindFuture)
		}
	}

	loc := now.Location()
	for _, b := range p.Buckets() {
		if b.Keep <= 0 {
			continue
		}
		seen := make(map[string]struct{}, b.Keep)
		for i, s := range sorted {
			if len(seen) >= b.Keep {
				break
			}
			if s.Timestamp.After(now) {
				continue
			}
			key := bucketKey(b.Kind, s.Timestamp.In(loc), i)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			reasons[i] = append(reasons[i], b.Kind)
		}
	}

	limit := 0
	if p.KeepLimit != nil && *p.KeepLimit > 0 {
		limit = *p.KeepLimit
	}
	kept := 0
	for i, s := range sorted {
		keep := len(reasons[i]) > 0
		if keep && limit > 0 && !isFuture(reasons[i]) {
			if kept >= limit {
				keep = false
			} else {
				kept++
			}
		}
		if keep {
			res.Keep = append(res.Keep, s)
			res.Reasons[s.Name] = reasons[i]
		} else {
			res.Delete = append(res.Delete, s)
		}
	}
	return res
}

func isFuture(kinds []Kind) bool {
	return len(kinds) > 0 && kinds[0] == KindFuture
}

// bucketKey maps t onto the bucket it falls in for kind. idx makes every
// snapshot its own bucket for KindLast.
func bucketKey(kind Kind, t time.Time, idx int) string {
	switch kind {
	case KindHourly:
		return t.Format("2006-01-02-15")
	case KindDaily:
		return t.Format("2006-01-02")
	case KindWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case KindMonthly:
		return t.Format("2006-01")
	case KindYearly:
		return t.Format("2006")
	default:
		return fmt.Sprintf("#%d", idx)
	}
}
