package retention_test

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"incus-snapper/src/retention"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func snaps(t *testing.T, pairs ...string) []retention.Snapshot {
	t.Helper()
	var out []retention.Snapshot
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, retention.Snapshot{Name: pairs[i], Timestamp: ts(t, pairs[i+1])})
	}
	return out
}

func names(s []retention.Snapshot) []string {
	out := make([]string, 0, len(s))
	for _, x := range s {
		out = append(out, x.Name)
	}
	return out
}

func intp(v int) *int { return &v }

func TestEvaluate_BucketKinds(t *testing.T) {
	cases := []struct {
		name   string
		policy retention.Policy
		input  []string
		keep   []string
	}{
		{
			name:   "hourly",
			policy: retention.Policy{KeepHourly: 4},
			input: []string{
				"snap-6", "2000-05-10 12:00:00",
				"snap-5", "2000-05-10 10:30:00",
				"snap-4", "2000-05-10 10:25:00",
				"snap-3", "2000-05-10 08:00:00",
				"snap-2", "2000-05-10 07:30:00",
				"snap-1", "2000-05-10 06:25:00",
			},
			keep: []string{"snap-6", "snap-5", "snap-3", "snap-2"},
		},
		{
			name:   "daily",
			policy: retention.Policy{KeepDaily: 4},
			input: []string{
				"snap-6", "2000-05-10 12:00:00",
				"snap-5", "2000-05-10 12:00:00",
				"snap-4", "2000-05-09 12:00:00",
				"snap-3", "2000-05-09 12:00:00",
				"snap-2", "2000-05-08 12:00:00",
				"snap-1", "2000-05-07 12:00:00",
			},
			keep: []string{"snap-6", "snap-4", "snap-2", "snap-1"},
		},
		{
			name:   "weekly",
			policy: retention.Policy{KeepWeekly: 4},
			input: []string{
				"snap-6", "2000-05-10 00:00:00",
				"snap-5", "2000-05-09 00:00:00",
				"snap-4", "2000-05-02 00:00:00",
				"snap-3", "2000-05-01 00:00:00",
				"snap-2", "2000-04-25 00:00:00",
				"snap-1", "2000-04-10 00:00:00",
			},
			keep: []string{"snap-6", "snap-4", "snap-2", "snap-1"},
		},
		{
			name:   "monthly",
			policy: retention.Policy{KeepMonthly: 4},
			input: []string{
				"snap-6", "2000-05-10 00:00:00",
				"snap-5", "2000-05-02 00:00:00",
				"snap-4", "2000-04-15 00:00:00",
				"snap-3", "2000-04-15 00:00:00",
				"snap-2", "2000-02-25 00:00:00",
				"snap-1", "2000-01-15 00:00:00",
			},
			keep: []string{"snap-6", "snap-4", "snap-2", "snap-1"},
		},
		{
			name:   "yearly",
			policy: retention.Policy{KeepYearly: 4},
			input: []string{
				"snap-6", "2000-06-10 00:00:00",
				"snap-5", "2000-06-10 00:00:00",
				"snap-4", "1999-06-10 00:00:00",
				"snap-3", "1999-06-10 00:00:00",
				"snap-2", "1998-06-10 00:00:00",
				"snap-1", "1995-06-10 00:00:00",
			},
			keep: []string{"snap-6", "snap-4", "snap-2", "snap-1"},
		},
		{
			name:   "last",
			policy: retention.Policy{KeepLast: 4},
			input: []string{
				"snap-6", "2000-05-10 12:00:00",
				"snap-5", "2000-05-09 12:00:00",
				"snap-4", "2000-05-08 12:00:00",
				"snap-3", "2000-05-07 12:00:00",
				"snap-2", "2000-05-06 12:00:00",
				"snap-1", "2000-05-05 12:00:00",
			},
			keep: []string{"snap-6", "snap-5", "snap-4", "snap-3"},
		},
		{
			name:   "hourly and daily",
			policy: retention.Policy{KeepHourly: 4, KeepDaily: 3},
			input: []string{
				"snap-9", "2000-05-10 12:00:00",
				"snap-8", "2000-05-10 10:00:00",
				"snap-7", "2000-05-10 08:00:00",
				"snap-6", "2000-05-09 12:00:00",
				"snap-5", "2000-05-09 10:00:00",
				"snap-4", "2000-05-09 08:00:00",
				"snap-3", "2000-05-08 12:00:00",
				"snap-2", "2000-05-08 10:00:00",
				"snap-1", "2000-05-08 08:00:00",
			},
			// hourly: 9, 8, 7, 6; daily: 9, 6, 3
			keep: []string{"snap-9", "snap-8", "snap-7", "snap-6", "snap-3"},
		},
	}
	now := ts(t, "2000-07-01 00:00:00")
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res := retention.Evaluate(c.policy, snaps(t, c.input...), now)
			if got := names(res.Keep); !reflect.DeepEqual(got, c.keep) {
				t.Fatalf("keep = %v, want %v", got, c.keep)
			}
		})
	}
}

// Eight consecutive daily backups, as produced by a daily cron job.
func eightDays(t *testing.T) []retention.Snapshot {
	var out []retention.Snapshot
	start := ts(t, "2012-07-30 12:00:00")
	for i := 0; i < 8; i++ {
		d := start.AddDate(0, 0, i)
		out = append(out, retention.Snapshot{Name: "auto-" + d.Format("20060102"), Timestamp: d})
	}
	return out
}

func TestEvaluate_DailyAndMonthlyTier(t *testing.T) {
	now := ts(t, "2012-08-06 12:00:00")
	res := retention.Evaluate(retention.Policy{KeepDaily: 5, KeepMonthly: 2}, eightDays(t), now)

	wantKeep := []string{"auto-20120806", "auto-20120805", "auto-20120804", "auto-20120803", "auto-20120802", "auto-20120731"}
	wantDelete := []string{"auto-20120801", "auto-20120730"}
	if got := names(res.Keep); !reflect.DeepEqual(got, wantKeep) {
		t.Fatalf("keep = %v, want %v", got, wantKeep)
	}
	if got := names(res.Delete); !reflect.DeepEqual(got, wantDelete) {
		t.Fatalf("delete = %v, want %v", got, wantDelete)
	}
	if got := res.Reasons["auto-20120806"]; !reflect.DeepEqual(got, []retention.Kind{retention.KindDaily, retention.KindMonthly}) {
		t.Fatalf("reasons for newest = %v", got)
	}
	if got := res.Reasons["auto-20120731"]; !reflect.DeepEqual(got, []retention.Kind{retention.KindMonthly}) {
		t.Fatalf("reasons for 07-31 = %v", got)
	}
}

func TestEvaluate_KeepLastTier(t *testing.T) {
	now := ts(t, "2012-08-06 12:00:00")
	res := retention.Evaluate(retention.Policy{KeepLast: 2}, eightDays(t), now)
	if got, want := names(res.Keep), []string{"auto-20120806", "auto-20120805"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keep = %v, want %v", got, want)
	}
	if len(res.Delete) != 6 {
		t.Fatalf("delete = %d, want 6", len(res.Delete))
	}
}

func TestEvaluate_Empty(t *testing.T) {
	res := retention.Evaluate(retention.Policy{KeepLast: 3}, nil, time.Now())
	if len(res.Keep) != 0 || len(res.Delete) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestEvaluate_EmptyPolicyDeletesEverything(t *testing.T) {
	res := retention.Evaluate(retention.Policy{}, eightDays(t), ts(t, "2012-09-01 00:00:00"))
	if len(res.Keep) != 0 || len(res.Delete) != 8 {
		t.Fatalf("keep=%d delete=%d, want 0/8", len(res.Keep), len(res.Delete))
	}
}

func TestEvaluate_KeepLimit(t *testing.T) {
	res := retention.Evaluate(retention.Policy{KeepDaily: 7, KeepLimit: intp(3)}, eightDays(t), ts(t, "2012-08-07 00:00:00"))
	if got, want := names(res.Keep), []string{"auto-20120806", "auto-20120805", "auto-20120804"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keep = %v, want %v", got, want)
	}
}

func TestEvaluate_FutureSnapshotsAreKept(t *testing.T) {
	in := snaps(t,
		"future", "2030-01-01 00:00:00",
		"a", "2012-08-06 00:00:00",
		"b", "2012-08-05 00:00:00",
	)
	res := retention.Evaluate(retention.Policy{KeepLast: 1}, in, ts(t, "2012-08-07 00:00:00"))
	if got, want := names(res.Keep), []string{"future", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keep = %v, want %v", got, want)
	}
}

func TestEvaluate_TiesKeepInputOrder(t *testing.T) {
	in := snaps(t,
		"first", "2012-08-06 00:00:00",
		"second", "2012-08-06 00:00:00",
	)
	res := retention.Evaluate(retention.Policy{KeepDaily: 1}, in, ts(t, "2012-08-07 00:00:00"))
	if got := names(res.Keep); !reflect.DeepEqual(got, []string{"first"}) {
		t.Fatalf("keep = %v, want [first]", got)
	}
}

func TestEvaluate_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	now := ts(t, "2020-01-01 00:00:00")
	for iter := 0; iter < 200; iter++ {
		n := r.Intn(40)
		in := make([]retention.Snapshot, 0, n)
		for i := 0; i < n; i++ {
			in = append(in, retention.Snapshot{
				Name:      fmt.Sprintf("s%d", i),
				Timestamp: now.Add(-time.Duration(r.Intn(24*400)) * time.Hour),
			})
		}
		p := retention.Policy{
			KeepLast:    r.Intn(3),
			KeepHourly:  r.Intn(5),
			KeepDaily:   r.Intn(8),
			KeepWeekly:  r.Intn(5),
			KeepMonthly: r.Intn(13),
			KeepYearly:  r.Intn(3),
		}
		if l := r.Intn(6); l > 0 {
			p.KeepLimit = intp(l)
		}
		if err := p.Validate(); err != nil {
			t.Fatalf("generated policy %+v is invalid: %v", p, err)
		}
		res := retention.Evaluate(p, in, now)

		if p.KeepLimit != nil && len(res.Keep) > *p.KeepLimit {
			t.Fatalf("kept %d snapshots, over keep-limit %d", len(res.Keep), *p.KeepLimit)
		}
		if len(res.Keep)+len(res.Delete) != len(in) {
			t.Fatalf("keep+delete = %d, want %d", len(res.Keep)+len(res.Delete), len(in))
		}
		seen := map[string]bool{}
		for _, s := range append(append([]retention.Snapshot{}, res.Keep...), res.Delete...) {
			if seen[s.Name] {
				t.Fatalf("%s appears twice", s.Name)
			}
			seen[s.Name] = true
		}

		if n > 0 && !p.Empty() {
			newest := in[0]
			for _, s := range in {
				if s.Timestamp.After(newest.Timestamp) {
					newest = s
				}
			}
			if _, ok := res.Reasons[newest.Name]; !ok {
				// Another snapshot may share the newest timestamp and win the slot.
				tied := false
				for _, k := range res.Keep {
					if k.Timestamp.Equal(newest.Timestamp) {
						tied = true
					}
				}
				if !tied {
					t.Fatalf("newest snapshot %s not kept under %+v", newest.Name, p)
				}
			}
		}

		again := retention.Evaluate(p, in, now)
		if !reflect.DeepEqual(names(again.Keep), names(res.Keep)) {
			t.Fatalf("evaluation is not deterministic")
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	if err := (retention.Policy{KeepDaily: -1}).Validate(); err == nil {
		t.Fatalf("expected negative keep-daily to be rejected")
	}
	if err := (retention.Policy{KeepLimit: intp(-2)}).Validate(); err == nil {
		t.Fatalf("expected negative keep-limit to be rejected")
	}
	if err := (retention.Policy{KeepLast: 3, KeepLimit: intp(0)}).Validate(); err == nil {
		t.Fatalf("expected keep-limit 0 to be rejected")
	}
	if err := (retention.Policy{KeepLast: 3, KeepLimit: intp(1)}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEvaluate_ZeroKeepLimitKeepsNewest(t *testing.T) {
	res := retention.Evaluate(retention.Policy{KeepLast: 3, KeepLimit: intp(0)}, eightDays(t), ts(t, "2012-08-07 00:00:00"))
	if got, want := names(res.Keep), []string{"auto-20120806", "auto-20120805", "auto-20120804"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keep = %v, want %v", got, want)
	}
}
