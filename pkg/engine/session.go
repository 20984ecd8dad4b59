package engine

import "sync"

// sessionRegistry hands out one lock per device serial. UI actions are
// inherently serial, so a flow run owns the bridge connection exclusively
// for its whole duration; a second run against the same serial blocks until
// the first releases.
type sessionRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var sessions = &sessionRegistry{locks: make(map[string]*sync.Mutex)}

// acquire locks the serial and returns the release func. Release is safe to
// call exactly once and must run unconditionally, abort included.
func (r *sessionRegistry) acquire(serial string) func() {
	r.mu.Lock()
	l, ok := r.locks[serial]
	if !ok {
		l = &sync.Mutex{}
		r.locks[serial] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
