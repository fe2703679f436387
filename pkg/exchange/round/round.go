// Package round models the exchange-wide trading round as an explicit
// state machine. Transitions are guarded centrally; every component that
// cares about the phase holds a reference to the same Round.
package round

import (
	"errors"
	"fmt"
	"sync"
)

// Phase of the round lifecycle: SETUP -> ACTIVE -> (RESOLVED | reset -> SETUP)
type Phase int8

const (
	Setup Phase = iota
	Active
	Resolved
)

func (p Phase) String() string {
	switch p {
	case Setup:
		return "SETUP"
	case Active:
		return "ACTIVE"
	case Resolved:
		return "RESOLVED"
	default:
		return "UNKNOWN"
	}
}

var ErrBadTransition = errors.New("invalid round transition")

// Round is the process-wide trading round. Orders are accepted only
// while Active; Resolved is terminal until the next reset.
type Round struct {
	mu     sync.RWMutex
	phase  Phase
	number int // increments on every reset
}

func New() *Round {
	return &Round{phase: Setup, number: 1}
}

// Phase returns the current phase
func (r *Round) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

// Number returns the current round number (1-based)
func (r *Round) Number() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.number
}

// Active reports whether trading is open
func (r *Round) Active() bool {
	return r.Phase() == Active
}

// Start opens trading: SETUP -> ACTIVE
func (r *Round) Start() error {
	return r.transition(Setup, Active)
}

// End halts trading without settling: ACTIVE -> SETUP
func (r *Round) End() error {
	return r.transition(Active, Setup)
}

// Resolve freezes the round for settlement: ACTIVE -> RESOLVED
func (r *Round) Resolve() error {
	return r.transition(Active, Resolved)
}

// Reset begins a fresh round from any phase
func (r *Round) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = Setup
	r.number++
}

func (r *Round) transition(from, to Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != from {
		return fmt.Errorf("%w: %s -> %s (currently %s)", ErrBadTransition, from, to, r.phase)
	}
	r.phase = to
	return nil
}
