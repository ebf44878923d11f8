// internal/models/role.go
package models

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleMember:
		return RoleMember, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", value)
}

// Actor is the caller on whose behalf a reservation change is proposed.
type Actor struct {
	MemberID  int64
	FirstName string
	LastName  string
	Role      Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) NameKey() NameKey {
	return NewNameKey(a.FirstName, a.LastName)
}
