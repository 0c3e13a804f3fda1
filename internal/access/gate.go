// Package access derives the single application state a request may act
// from, given the caller's identity and membership record. Handlers and
// middleware consume this state instead of re-deriving role and status
// conditionals at each call site.
package access

import "library-api/internal/model"

// State is the resolved access level of a request.
type State int

const (
	Anonymous State = iota
	AuthenticatedNoProfile
	MemberPending
	MemberRejected
	MemberNoSchool
	MemberApproved
	AdminApproved
	Developer
)

var stateNames = map[State]string{
	Anonymous:              "ANONYMOUS",
	AuthenticatedNoProfile: "AUTHENTICATED_NO_PROFILE",
	MemberPending:          "MEMBER_PENDING",
	MemberRejected:         "MEMBER_REJECTED",
	MemberNoSchool:         "MEMBER_NO_SCHOOL",
	MemberApproved:         "MEMBER_APPROVED",
	AdminApproved:          "ADMIN_APPROVED",
	Developer:              "DEVELOPER",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Resolve maps (identity present, membership record) to exactly one state.
// It is a pure function: the DEVELOPER role short-circuits every other
// check, a PENDING status routes to MemberPending regardless of any other
// field, and REJECTED is terminal until an admin mutates the stored status.
func Resolve(authenticated bool, u *model.User) State {
	if !authenticated {
		return Anonymous
	}
	if u == nil {
		return AuthenticatedNoProfile
	}
	if u.Role == model.RoleDeveloper {
		return Developer
	}

	switch u.Status {
	case model.StatusPending:
		return MemberPending
	case model.StatusRejected:
		return MemberRejected
	}

	if u.SchoolID == nil {
		return MemberNoSchool
	}

	if u.Role == model.RoleAdmin {
		return AdminApproved
	}
	return MemberApproved
}

// CanBrowse reports whether the state may read its school's catalog.
func (s State) CanBrowse() bool {
	switch s {
	case MemberApproved, AdminApproved, Developer:
		return true
	}
	return false
}

// CanManage reports whether the state may mutate its school's catalog and
// memberships.
func (s State) CanManage() bool {
	return s == AdminApproved || s == Developer
}

// CrossSchool reports whether the state may address schools other than its
// own.
func (s State) CrossSchool() bool {
	return s == Developer
}
