package domain

import "fmt"

// Action is a moderator decision.
type Action string

const (
	ActionApproveAsIs       Action = "approve_as_is"
	ActionApproveWithBuffer Action = "approve_with_buffer"
	ActionEditOutput        Action = "edit_output"
	ActionSafeResponseOnly  Action = "safe_response_only"
	ActionEscalate          Action = "escalate"
)

// Actions lists every decision action.
var Actions = []Action{
	ActionApproveAsIs,
	ActionApproveWithBuffer,
	ActionEditOutput,
	ActionSafeResponseOnly,
	ActionEscalate,
}

var actionAliases = map[string]Action{
	string(StatusApproved):           ActionApproveAsIs,
	string(StatusApprovedWithBuffer): ActionApproveWithBuffer,
	string(StatusEdited):             ActionEditOutput,
	string(StatusSafeResponseOnly):   ActionSafeResponseOnly,
	string(StatusEscalated):          ActionEscalate,
}

// ParseAction accepts an action name or the name of the terminal status it
// produces.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	if a, ok := actionAliases[s]; ok {
		return a, nil
	}
	return "", NewValidationError("action", fmt.Sprintf("unknown action %q", s))
}
