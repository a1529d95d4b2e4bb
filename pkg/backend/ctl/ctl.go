// Package ctl implements diod's synthetic diagnostic filesystem (spec.md
// §4.10 "Ctl backend", expanded by SPEC_FULL.md §5 with the concrete file
// set the original implementation exposes): a small read-mostly tree
// rooted at aname "ctl" holding version, connections, exports, null, zero,
// date, stats, and a writable loglevel file.
package ctl

import (
	"fmt"
	"time"

	"github.com/marmos91/diod/pkg/backend"
)

// LogLevelSetter is invoked when a client writes a level name to
// ctl/loglevel (SPEC_FULL.md §5: "folded into ctl/loglevel (write a level
// name, take effect immediately), documented as a diod-specific addition
// beyond SIGHUP reload").
type LogLevelSetter func(level string) error

// Config bundles the live data sources the ctl tree reports. Every field
// is optional; a nil accessor renders its file empty rather than panicking,
// since a server built without wiring every subsystem (tests, early boot)
// should still be able to mount ctl.
type Config struct {
	Version      string
	Connections  func() []string
	Exports      func() []string
	Stats        func() string
	CurrentLevel func() string
	SetLogLevel  LogLevelSetter
}

// NewRoot builds the ctl directory object.
func NewRoot(cfg Config) backend.Object {
	root := newDir("ctl", nil)
	root.add("version", newFile("version", root, func() []byte {
		return []byte(cfg.Version + "\n")
	}, nil))
	root.add("connections", newFile("connections", root, func() []byte {
		return joinLines(cfg.Connections)
	}, nil))
	root.add("exports", newFile("exports", root, func() []byte {
		return joinLines(cfg.Exports)
	}, nil))
	root.add("null", newFile("null", root, func() []byte { return nil }, func([]byte) (int, error) { return 0, nil }))
	root.add("zero", newFile("zero", root, func() []byte { return make([]byte, 4096) }, nil))
	root.add("date", newFile("date", root, func() []byte {
		return []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	}, nil))
	root.add("stats", newFile("stats", root, func() []byte {
		if cfg.Stats == nil {
			return nil
		}
		return []byte(cfg.Stats() + "\n")
	}, nil))
	root.add("loglevel", newFile("loglevel", root,
		func() []byte {
			if cfg.CurrentLevel == nil {
				return nil
			}
			return []byte(cfg.CurrentLevel() + "\n")
		},
		func(p []byte) (int, error) {
			if cfg.SetLogLevel == nil {
				return 0, fmt.Errorf("ctl: loglevel: %w", errNotSupported)
			}
			if err := cfg.SetLogLevel(trimNewline(p)); err != nil {
				return 0, fmt.Errorf("ctl: set loglevel: %w", err)
			}
			return len(p), nil
		}))
	return root
}

func joinLines(fn func() []string) []byte {
	if fn == nil {
		return nil
	}
	var out []byte
	for _, line := range fn() {
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out
}

// Backend adapts a ctl root into backend.Backend so it can sit in the same
// aname-dispatch table as the POSIX exports (SPEC_FULL.md's component
// table: "POSIX-fs and synthetic-ctl backends behind one interface").
type Backend struct{ root backend.Object }

// NewBackend wraps a ctl tree built by NewRoot.
func NewBackend(cfg Config) *Backend {
	return &Backend{root: NewRoot(cfg)}
}

func (b *Backend) Root(string) (backend.Object, error) { return b.root, nil }

func trimNewline(p []byte) string {
	s := string(p)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
