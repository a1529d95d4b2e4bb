//go:build linux

// Package worker implements the fixed worker pool and per-request
// credential switching described in spec.md §4.7 and §5: each Job runs to
// completion on one OS thread, which assumes the caller's fsuid/fsgid/
// groups for the duration of the call and restores the server's pristine
// identity before picking up the next Job.
package worker

import (
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/marmos91/diod/pkg/auth"
	"github.com/marmos91/diod/pkg/identity"
)

// Job is one unit of work dispatched to the pool: a resolved identity and
// the handler body to run under it.
type Job struct {
	Identity auth.Identity

	// Run executes the 9P handler's backend call. Once submitted it always
	// runs to completion on its worker thread — a blocked syscall here
	// can't be preempted from outside. Cancellation (spec.md §4.5) happens
	// one layer up: pkg/ninep/conn's doAs stops waiting on the caller's
	// side as soon as the request's ctx is done, and simply discards
	// whatever Run eventually returns.
	Run func()
}

// Pool is a fixed set of goroutines, each permanently locked to its own OS
// thread (spec.md §5: "preemptively-scheduled OS threads ... a request is
// never migrated between workers"), draining a shared job queue.
type Pool struct {
	jobs chan Job
	wg   sync.WaitGroup

	// asRoot records whether the server process itself runs as uid 0,
	// which is what makes DAC_OVERRIDE meaningful for root-identity jobs
	// (spec.md §4.7 point 2).
	asRoot bool
}

// NewPool starts n worker goroutines. n must be >= 1.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		jobs:   make(chan Job, n*4),
		asRoot: unix.Getuid() == 0,
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.loop()
	}
	return p
}

// Submit enqueues job, blocking if every worker is busy and the queue is
// full — this is the pool's only backpressure mechanism; callers that must
// not block the reader loop should submit from a separate goroutine per
// request (pkg/ninep/conn does this).
func (p *Pool) Submit(job Job) {
	p.jobs <- job
}

// Close stops accepting new jobs and waits for in-flight ones to finish.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

func (p *Pool) loop() {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for job := range p.jobs {
		p.runOne(job)
	}
}

// runOne performs the credential switch, runs the handler, and restores
// the pristine server identity, regardless of whether the handler panics
// (a panicking handler still must not leave the OS thread impersonating a
// client — restore runs via defer before the panic propagates further).
func (p *Pool) runOne(job Job) {
	defer restoreIdentity()
	switchIdentity(job.Identity, identity.GroupSwitchOK())
	job.Run()
}

// switchIdentity assumes ident's fsgid, supplementary groups, and fsuid in
// that order (spec.md §4.7 point 1: gid before uid, since dropping fsuid
// first could remove the privilege needed to change groups). Errors are
// deliberately swallowed here other than via the best-effort groupSwitchOK
// gate — a worker thread that fails to switch groups still must attempt
// fsuid/fsgid, and the backend's own permission checks (via the real
// syscalls it issues next) are the actual enforcement point.
func switchIdentity(ident auth.Identity, groupSwitchOK bool) {
	_, _ = unix.Setfsgid(int(ident.GID))
	if groupSwitchOK {
		groups := make([]int, len(ident.Groups))
		for i, g := range ident.Groups {
			groups[i] = int(g)
		}
		_ = unix.Setgroups(groups)
	}
	_, _ = unix.Setfsuid(int(ident.UID))
}

// restoreIdentity returns the calling (locked) OS thread to the server's
// own fsuid/fsgid/groups: uid 0, gid 0, no supplementary groups, since the
// pool only ever runs as the process's real identity (root, if credential
// switching is active at all — spec.md §4.7: "If the server was not
// started as root, no credential switching is possible").
func restoreIdentity() {
	_, _ = unix.Setfsuid(unix.Getuid())
	_, _ = unix.Setfsgid(unix.Getgid())
	_ = unix.Setgroups(nil)
}

// AsRoot reports whether the server process itself is running as uid 0.
func (p *Pool) AsRoot() bool { return p.asRoot }
