package state

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Guard decides whether a registered transition may fire for a subject.
type Guard[T any] func(subject T) bool

// Table is a whitelist of transitions between states S of subjects T. A
// transition that was never added is rejected.
type Table[S comparable, T any] struct {
	transitions map[S]map[S]Guard[T] // fromState -> toState -> condition
	mutex       sync.RWMutex
}

func NewTable[S comparable, T any]() *Table[S, T] {
	return &Table[S, T]{
		transitions: make(map[S]map[S]Guard[T]),
	}
}

// AddTransition allows from -> to. A nil guard always passes.
func (t *Table[S, T]) AddTransition(from, to S, guard Guard[T]) *Table[S, T] {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.transitions[from]; !exists {
		t.transitions[from] = make(map[S]Guard[T])
	}
	t.transitions[from][to] = guard
	return t
}

// Check reports whether subject, currently in from, may move to to.
func (t *Table[S, T]) Check(subject T, from, to S) error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	targets, exists := t.transitions[from]
	if !exists {
		return fmt.Errorf("%w: %v -> %v", ErrTransitionNotAllowed, from, to)
	}
	guard, exists := targets[to]
	if !exists {
		return fmt.Errorf("%w: %v -> %v", ErrTransitionNotAllowed, from, to)
	}
	if guard != nil && !guard(subject) {
		return fmt.Errorf("%w: %v -> %v guard failed", ErrTransitionNotAllowed, from, to)
	}
	return nil
}

// Targets lists the states reachable from from, ignoring guards.
func (t *Table[S, T]) Targets(from S) []S {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	out := make([]S, 0, len(t.transitions[from]))
	for to := range t.transitions[from] {
		out = append(out, to)
	}
	return out
}
