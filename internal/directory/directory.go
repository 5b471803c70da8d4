package directory

import (
	"fmt"
	"strings"
	"sync"
)

// FilterAll selects every recipient regardless of group tag.
const FilterAll = "ALL"

// Recipient is a single roster entry. Immutable once stored; the roster is
// only ever replaced wholesale.
type Recipient struct {
	Identifier  string
	DisplayName string
	GroupTag    string
}

// RosterRow is one incoming row for a roster replacement, typically parsed
// from an uploaded CSV file.
type RosterRow struct {
	Name       string
	Identifier string
	GroupTag   string
}

// ValidationError reports a rejected roster replacement. Row is 1-based.
type ValidationError struct {
	Row    int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("roster row %d: %s", e.Row, e.Reason)
	}
	return e.Reason
}

// Directory holds the current recipient roster and the delivery allow list.
// The roster and the allow list have independent lifecycles and locks: a
// broadcast holds the roster read lock for its whole run, while the allow
// list may still be consulted and replaced independently.
type Directory struct {
	rosterMu sync.RWMutex
	roster   []Recipient

	allowMu sync.RWMutex
	allow   map[string]struct{}
}

// New creates an empty Directory.
func New() *Directory {
	return &Directory{
		allow: make(map[string]struct{}),
	}
}

// ReplaceRoster validates the given rows and atomically replaces the entire
// roster. The old roster is fully discarded, never merged. Returns a
// ValidationError when a row lacks an identifier or an identifier is
// duplicated within the new roster; the existing roster is untouched on
// failure. Blocks while a broadcast holds the roster.
func (d *Directory) ReplaceRoster(rows []RosterRow) error {
	seen := make(map[string]int, len(rows))
	next := make([]Recipient, 0, len(rows))

	for i, row := range rows {
		id := strings.TrimSpace(row.Identifier)
		if id == "" {
			return &ValidationError{Row: i + 1, Reason: "missing identifier"}
		}
		if first, dup := seen[id]; dup {
			return &ValidationError{Row: i + 1, Reason: fmt.Sprintf("duplicate identifier %q (first seen at row %d)", id, first)}
		}
		seen[id] = i + 1
		next = append(next, Recipient{
			Identifier:  id,
			DisplayName: strings.TrimSpace(row.Name),
			GroupTag:    strings.TrimSpace(row.GroupTag),
		})
	}

	d.rosterMu.Lock()
	d.roster = next
	d.rosterMu.Unlock()
	return nil
}

// Query returns recipients matching the filter in insertion order.
// FilterAll returns every recipient. An empty result is not an error.
func (d *Directory) Query(groupFilter string) []Recipient {
	d.rosterMu.RLock()
	defer d.rosterMu.RUnlock()
	return selectRecipients(d.roster, groupFilter)
}

// BeginBroadcast acquires the roster read lock, selects the recipients
// matching the filter, and returns them along with a release function.
// ReplaceRoster blocks until release is called, so a batch never observes
// a half-replaced roster. The release function must be called exactly once.
func (d *Directory) BeginBroadcast(groupFilter string) ([]Recipient, func()) {
	d.rosterMu.RLock()
	selected := selectRecipients(d.roster, groupFilter)

	var once sync.Once
	release := func() {
		once.Do(d.rosterMu.RUnlock)
	}
	return selected, release
}

// IsAuthorized reports whether the identifier is on the allow list.
func (d *Directory) IsAuthorized(identifier string) bool {
	d.allowMu.RLock()
	defer d.allowMu.RUnlock()
	_, ok := d.allow[identifier]
	return ok
}

// ReplaceAllowList atomically replaces the entire allow list. Independent
// of roster replacement; safe to call during a broadcast.
func (d *Directory) ReplaceAllowList(identifiers []string) {
	next := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		id = strings.TrimSpace(id)
		if id != "" {
			next[id] = struct{}{}
		}
	}

	d.allowMu.Lock()
	d.allow = next
	d.allowMu.Unlock()
}

// Size returns the number of recipients in the current roster.
func (d *Directory) Size() int {
	d.rosterMu.RLock()
	defer d.rosterMu.RUnlock()
	return len(d.roster)
}

// AllowListSize returns the number of identifiers on the allow list.
func (d *Directory) AllowListSize() int {
	d.allowMu.RLock()
	defer d.allowMu.RUnlock()
	return len(d.allow)
}

// selectRecipients copies the matching subsequence so callers never alias
// the internal slice.
func selectRecipients(roster []Recipient, groupFilter string) []Recipient {
	selected := make([]Recipient, 0, len(roster))
	for _, r := range roster {
		if groupFilter == FilterAll || r.GroupTag == groupFilter {
			selected = append(selected, r)
		}
	}
	return selected
}
