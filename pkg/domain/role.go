package domain

import dErrors "medihub/pkg/domain-errors"

// Role determines the authorization path taken by the access gate. The set is
// closed; ParseRole rejects anything else at trust boundaries.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

var validRoles = map[Role]bool{
	RolePatient: true,
	RoleDoctor:  true,
	RoleAdmin:   true,
}

func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "role cannot be empty")
	}
	r := Role(s)
	if !validRoles[r] {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid role")
	}
	return r, nil
}

func (r Role) IsValid() bool { return validRoles[r] }

func (r Role) String() string { return string(r) }

// Actor is the already-authenticated identity supplied with every core call.
// Session and login mechanics live outside this service; the actor is trusted
// as verified by the transport layer.
type Actor struct {
	UserID UserID
	Role   Role
}
