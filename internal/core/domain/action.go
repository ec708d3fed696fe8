package domain

import "fmt"

// Action is a lifecycle transition requested for a service group.
type Action int

const (
	ActionEnsureNetwork Action = iota + 1
	ActionStart
	ActionStop
	ActionRemove
)

var actionNames = map[Action]string{
	ActionEnsureNetwork: "ensure-network",
	ActionStart:         "start",
	ActionStop:          "stop",
	ActionRemove:        "remove",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction converts a user supplied name into an Action.
func ParseAction(s string) (Action, error) {
	for a, n := range actionNames {
		if n == s {
			return a, nil
		}
	}
	return 0, &InvalidSelectionError{What: "action", Value: s, Allowed: []string{"ensure-network", "start", "stop", "remove"}}
}
