package enums

import (
	"fmt"
	"strings"
)

type MemberRole string

const (
	RoleOwner MemberRole = "owner"
	RoleAdmin MemberRole = "admin"
	RoleStaff MemberRole = "staff"
)

func (r MemberRole) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleStaff:
		return true
	}
	return false
}

// AtLeast reports whether r carries at minimum the privileges of required.
// owner > admin > staff.
func (r MemberRole) AtLeast(required MemberRole) bool {
	rank := map[MemberRole]int{RoleStaff: 1, RoleAdmin: 2, RoleOwner: 3}
	return rank[r] >= rank[required]
}

func (r MemberRole) String() string {
	return string(r)
}

func ParseMemberRole(value string) (MemberRole, error) {
	role := MemberRole(strings.ToLower(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", fmt.Errorf("unknown member role %q", value)
	}
	return role, nil
}
