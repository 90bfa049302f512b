package domain

// Role is the part an operator plays in the workflow.
type Role string

const (
	RolePreparer  Role = "preparer"
	RoleReviewer  Role = "reviewer"
	RoleValidator Role = "validator"
	RoleApprover  Role = "approver"

	// RoleSystem marks entries logged by the engine itself. Callers cannot act as it.
	RoleSystem Role = "system"
)

// SystemActorName is the display name of the automatic relay actor.
const SystemActorName = "System"

// IsOperator checks if the role can be claimed by a caller.
func (r Role) IsOperator() bool {
	switch r {
	case RolePreparer, RoleReviewer, RoleValidator, RoleApprover:
		return true
	default:
		return false
	}
}

// Actor identifies the operator submitting an action.
type Actor struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
	Role Role   `json:"role" validate:"required,oneof=preparer reviewer validator approver"`
}

// SystemActor is the actor used for relay entries.
var SystemActor = Actor{ID: "system", Name: SystemActorName, Role: RoleSystem}
