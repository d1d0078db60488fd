package strategy

import (
	"errors"
	"fmt"
)

// LifecycleState is the strategy instance lifecycle state.
type LifecycleState string

const (
	LifecycleCreated  LifecycleState = "CREATED"
	LifecycleStarted  LifecycleState = "STARTED"
	LifecycleRunning  LifecycleState = "RUNNING"
	LifecycleStopped  LifecycleState = "STOPPED"
	LifecycleDisposed LifecycleState = "DISPOSED"
)

// ErrInvalidTransition is returned (wrapped) when a lifecycle command is
// issued from a state that does not allow it.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// lifecycle enforces the strategy state machine. Start is allowed from
// CREATED or STOPPED (restart). Stop only from RUNNING. Reset keeps the
// instance RUNNING. Dispose only from STOPPED and is final.
type lifecycle struct {
	state LifecycleState
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: LifecycleCreated}
}

func (l *lifecycle) State() LifecycleState { return l.state }

func (l *lifecycle) markStarted() error {
	if l.state != LifecycleCreated && l.state != LifecycleStopped {
		return fmt.Errorf("start from %s: %w", l.state, ErrInvalidTransition)
	}
	l.state = LifecycleStarted
	return nil
}

func (l *lifecycle) markRunning() error {
	if l.state != LifecycleStarted {
		return fmt.Errorf("run from %s: %w", l.state, ErrInvalidTransition)
	}
	l.state = LifecycleRunning
	return nil
}

func (l *lifecycle) markStopped() error {
	if l.state != LifecycleRunning && l.state != LifecycleStarted {
		return fmt.Errorf("stop from %s: %w", l.state, ErrInvalidTransition)
	}
	l.state = LifecycleStopped
	return nil
}

func (l *lifecycle) markDisposed() error {
	if l.state != LifecycleStopped {
		return fmt.Errorf("dispose from %s: %w", l.state, ErrInvalidTransition)
	}
	l.state = LifecycleDisposed
	return nil
}
