package domain

// Role enumerates portal roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleGuest    Role = "guest"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee || r == RoleGuest
}

// Action enumerates operations gated by role.
type Action string

const (
	ActionSubmit       Action = "submit"
	ActionApprove      Action = "approve"
	ActionReject       Action = "reject"
	ActionRequestInfo  Action = "requestInfo"
	ActionResubmit     Action = "resubmit"
	ActionAssign       Action = "assign"
	ActionUpdateStatus Action = "updateStatus"
	ActionReopen       Action = "reopen"
	ActionCancel       Action = "cancel"
	ActionSkipStep     Action = "skipStep"
	ActionComment      Action = "comment"
	ActionViewDetails  Action = "viewDetails"
)

// Principal represents an authenticated actor.
type Principal struct {
	Email        string
	DisplayName  string
	Role         Role
	Team         string
	PasswordHash string
}

// Name returns the display name falling back to email.
func (p Principal) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}
