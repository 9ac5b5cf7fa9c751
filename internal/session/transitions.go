// Package session runs the lifecycle of a round's attendance windows.
//
// Valid status graph:
//
//	ACTIVE ◄──► TEMP_CLOSED
//	   │             │
//	   └─────────────┴──► PERM_CLOSED
//
// PERM_CLOSED is terminal.
package session

import (
	"fmt"

	"placement/internal/model"
)

// Action is an admin request to move a session.
type Action string

const (
	ActionTempClose Action = "TEMP_CLOSE"
	ActionResume    Action = "RESUME"
	ActionPermClose Action = "PERM_CLOSE"
)

var actionTargets = map[Action]model.SessionStatus{
	ActionTempClose: model.SessionTempClosed,
	ActionResume:    model.SessionActive,
	ActionPermClose: model.SessionPermClosed,
}

var validTransitions = map[model.SessionStatus][]model.SessionStatus{
	model.SessionActive:     {model.SessionTempClosed, model.SessionPermClosed},
	model.SessionTempClosed: {model.SessionActive, model.SessionPermClosed},
}

// ParseAction converts a raw string to an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := actionTargets[a]; !ok {
		return "", fmt.Errorf("unknown session action %q", s)
	}
	return a, nil
}

// Target returns the status an action moves a session to.
func (a Action) Target() model.SessionStatus { return actionTargets[a] }

// IsTransitionAllowed reports whether from → to is a legal move.
func IsTransitionAllowed(from, to model.SessionStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
