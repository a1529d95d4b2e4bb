//go:build linux

package identity

import (
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	probeOnce   sync.Once
	groupSwitch bool
)

// GroupSwitchOK reports whether the startup probe (probeGroupSwitch) could
// set supplementary groups on a locked OS thread. It runs the probe
// exactly once and caches the result; the
// worker pool consults it to decide whether to enforce supplementary-group
// credentials or log a degraded-mode warning (spec.md §5: "if not,
// supplementary-group enforcement is disabled with a warning").
func GroupSwitchOK() bool {
	probeOnce.Do(func() {
		groupSwitch = probeGroupSwitch()
	})
	return groupSwitch
}

// probeGroupSwitch locks a throwaway goroutine to its own OS thread, reads
// that thread's current groups, adds a group, and restores the original
// list. It reports true when that Setgroups call succeeds; it does not
// compare any other thread's group list. A failing Setgroups call means
// the kernel or capability set does not allow group switching at all.
func probeGroupSwitch() bool {
	result := make(chan bool, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		original, err := unix.Getgroups()
		if err != nil {
			result <- false
			return
		}
		probe := append([]int{}, original...)
		probe = append(probe, 0)
		if err := unix.Setgroups(probe); err != nil {
			result <- false
			return
		}
		// Restore this thread's groups: the deferred UnlockOSThread hands
		// the thread back to the scheduler for other goroutines.
		_ = unix.Setgroups(original)
		result <- true
	}()
	return <-result
}
