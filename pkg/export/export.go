// Package export implements the export list and aname-resolution policy
// described in spec.md §4.9: which filesystem trees may be attached, by
// whom, and under what per-export options (sharefd, sharepath, privport,
// ro), plus the diodshowmount-equivalent listing supplemented from
// original_source (SPEC_FULL.md §5).
package export

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Errors surfaced as Rerror("permission denied") by the attach handler.
var (
	ErrNotExported  = errors.New("export: aname is not an exported path")
	ErrUserNotAllowed = errors.New("export: user not permitted on this export")
)

// Entry is one configured export.
type Entry struct {
	// Path is the absolute host directory this export serves, and also
	// the aname clients must name (or descend from) to attach to it.
	Path string

	// ReadOnly rejects any operation that would modify the tree.
	ReadOnly bool

	// SharePath/ShareFD select process-wide vs per-connection Path
	// interning and IOCtx sharing for fids under this export (spec.md
	// §4.8).
	SharePath bool
	ShareFD   bool

	// RequirePrivPort rejects Tattach from connections whose peer port
	// was not < 1024 (SPEC_FULL.md §5, spec.md §9 Open Question
	// resolution: enforced once, at Tattach).
	RequirePrivPort bool

	// Users, if non-empty, restricts attach to these unames when the
	// server's allsquash policy is active (spec.md §4.9 step 2).
	Users []string
}

// Allows reports whether uname may attach under this export's allsquash
// user restriction. An empty Users list permits everyone.
func (e Entry) Allows(uname string) bool {
	if len(e.Users) == 0 {
		return true
	}
	for _, u := range e.Users {
		if u == uname {
			return true
		}
	}
	return false
}

// List is the server's configured export set plus the export-all escape
// hatch (spec.md §6 `--export-all`).
type List struct {
	mu        sync.RWMutex
	entries   []Entry
	exportAll bool
}

// NewList builds a List from configured entries. exportAll permits
// attaching to any host path (still subject to per-export options looked
// up by longest-prefix match against entries, if any entry happens to
// cover the requested path).
func NewList(entries []Entry, exportAll bool) *List {
	return &List{entries: entries, exportAll: exportAll}
}

// Resolve finds the Entry governing aname: an exact match, or the entry
// whose Path is the longest matching ancestor directory of aname (spec.md
// §4.9 step 2: "aname must exactly equal an exported path, or be a
// descendant of one"). When exportAll is set and no configured entry
// matches, a synthetic read-write, non-shared entry rooted at aname itself
// is returned.
func (l *List) Resolve(aname string) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	aname = normalize(aname)
	var best Entry
	found := false
	for _, e := range l.entries {
		p := normalize(e.Path)
		if aname == p || strings.HasPrefix(aname, strings.TrimSuffix(p, "/")+"/") {
			if !found || len(p) > len(best.Path) {
				best = e
				found = true
			}
		}
	}
	if found {
		return best, nil
	}
	if l.exportAll {
		return Entry{Path: aname}, nil
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrNotExported, aname)
}

// Entries returns a snapshot of configured exports.
func (l *List) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func normalize(p string) string {
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		return strings.TrimRight(p, "/")
	}
	return p
}
