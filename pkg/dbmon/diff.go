// Package dbmon watches CONFIG_DB tables and reports what changed.
//
// A Checker keeps a snapshot of its tables, one hash per key as returned by
// HGETALL. Keyspace notifications (__keyspace@4__:<TABLE>|*) trigger a
// reload, and the reload is diffed against the snapshot. Redis must have
// keyspace events enabled ("notify-keyspace-events KA" or wider); a
// periodic resync covers missed notifications.
package dbmon

import (
	"maps"
	"sort"
	"strings"
)

// KeySeparator separates table and key in CONFIG_DB.
const KeySeparator = "|"

// Entry is one CONFIG_DB hash.
type Entry map[string]string

// Table maps the key part after the separator, e.g. "Vlan1000", to its
// hash.
type Table map[string]Entry

// Snapshot maps table names to their content.
type Snapshot map[string]Table

// TableDiff lists the keys of a table that were added, removed or whose
// hash changed, each sorted.
type TableDiff struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Changed []string `json:"changed,omitempty"`
}

// Empty reports whether nothing changed.
func (d TableDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Changes maps table names to their non-empty diffs.
type Changes map[string]TableDiff

// Tables returns the changed table names, sorted.
func (c Changes) Tables() []string {
	out := make([]string, 0, len(c))
	for t := range c {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Diff compares two versions of a table.
func Diff(old, new Table) TableDiff {
	var d TableDiff
	for key, entry := range new {
		prev, ok := old[key]
		switch {
		case !ok:
			d.Added = append(d.Added, key)
		case !maps.Equal(prev, entry):
			d.Changed = append(d.Changed, key)
		}
	}
	for key := range old {
		if _, ok := new[key]; !ok {
			d.Removed = append(d.Removed, key)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}

// DiffSnapshots diffs every table present in either snapshot.
func DiffSnapshots(old, new Snapshot) Changes {
	out := make(Changes)
	seen := make(map[string]bool)
	for name := range new {
		seen[name] = true
	}
	for name := range old {
		seen[name] = true
	}
	for name := range seen {
		if d := Diff(old[name], new[name]); !d.Empty() {
			out[name] = d
		}
	}
	return out
}

// SplitKey splits "VLAN|Vlan1000" into table and key. Keys of tables such
// as VLAN_MEMBER contain the separator again; only the first one splits.
func SplitKey(full string) (table, key string, ok bool) {
	return strings.Cut(full, KeySeparator)
}

// TableOfChannel extracts the table from a keyspace notification channel
// such as "__keyspace@4__:VLAN|Vlan1000".
func TableOfChannel(channel string) (string, bool) {
	_, full, ok := strings.Cut(channel, ":")
	if !ok {
		return "", false
	}
	table, _, ok := SplitKey(full)
	return table, ok
}
