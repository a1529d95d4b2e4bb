package export

import "strings"

// ParseOpts parses the `--export-opts` CSV (spec.md §6: "sharefd,
// sharepath, privport, ro") into the boolean fields of an Entry, leaving
// Path and Users untouched. Unknown tokens are ignored, matching the
// original's permissive option parsing.
func ParseOpts(csv string) Entry {
	var e Entry
	for _, tok := range strings.Split(csv, ",") {
		switch strings.TrimSpace(tok) {
		case "sharefd":
			e.ShareFD = true
		case "sharepath":
			e.SharePath = true
		case "privport":
			e.RequirePrivPort = true
		case "ro":
			e.ReadOnly = true
		}
	}
	return e
}
