package application

import (
	"sync"

	"github.com/felixgeelhaar/devwatch/internal/domain"
)

// ProcessRegistry is a single slot holding at most one managed process.
// The lock is held only for the duration of each call.
type ProcessRegistry struct {
	mu   sync.Mutex
	proc domain.ManagedProcess
}

// Take removes and returns the current process, or nil if the slot is empty.
func (r *ProcessRegistry) Take() domain.ManagedProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.proc
	r.proc = nil
	return p
}

// Put stores p and returns whatever occupied the slot before. Callers take
// and dispose of the previous occupant first, so displaced is normally nil.
func (r *ProcessRegistry) Put(p domain.ManagedProcess) (displaced domain.ManagedProcess) {
	r.mu.Lock()
	defer r.mu.Unlock()
	displaced = r.proc
	r.proc = p
	return displaced
}

// Occupied reports whether a process is stored.
func (r *ProcessRegistry) Occupied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proc != nil
}
