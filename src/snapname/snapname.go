// Package snapname renders and classifies snapshot names.
//
// Automatic snapshots are named <prefix><timestamp>, where the timestamp is
// encoded so that lexical and chronological order coincide. Everything else is
// a manual snapshot and is never touched by backup or prune.
package snapname

import (
	"strings"
	"time"
)

// DefaultPrefix is used when the configuration does not override it.
const DefaultPrefix = "auto-"

// Layout is the timestamp layout of names rendered by Name.
const Layout = "20060102-150405"

// parseLayouts are tried in order when classifying an existing name.
var parseLayouts = []string{
	Layout,
	"20060102150405",
	"20060102",
}

// Classification is the result of Classify.
type Classification struct {
	Automatic bool
	// Timestamp is the UTC time encoded in the name; zero for manual snapshots.
	Timestamp time.Time
}

// Manual reports whether the snapshot is not managed by us.
func (c Classification) Manual() bool { return !c.Automatic }

// Name renders the automatic snapshot name for now.
func Name(prefix string, now time.Time) string {
	return prefix + now.UTC().Format(Layout)
}

// Classify decides whether name is an automatic snapshot. A name carrying the
// prefix but a malformed timestamp is classified as manual.
func Classify(prefix, name string) Classification {
	if !strings.HasPrefix(name, prefix) {
		return Classification{}
	}
	raw := name[len(prefix):]
	for _, layout := range parseLayouts {
		if len(raw) != len(layout) {
			continue
		}
		ts, err := time.ParseInLocation(layout, raw, time.UTC)
		if err != nil {
			continue
		}
		return Classification{Automatic: true, Timestamp: ts}
	}
	return Classification{}
}
