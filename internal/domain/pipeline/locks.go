// Package pipeline runs the clinical decision support sequence in
// response to new patient data. The orchestrator is the sole writer of
// risk scores and alerts: handlers feed it, domain services do the
// work, and a per-patient lock keeps concurrent runs for the same
// patient from interleaving.
package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// patientLocks hands out one mutex per patient id. Entries are
// reference-counted and dropped when the last holder releases, so the
// map stays proportional to in-flight runs, not to patients seen.
type patientLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newPatientLocks() *patientLocks {
	return &patientLocks{entries: map[uuid.UUID]*lockEntry{}}
}

// acquire blocks until the patient's lock is held and returns the
// release function. Runs for different patients proceed in parallel.
func (l *patientLocks) acquire(id uuid.UUID) func() {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
