package user

import "strings"

// Principal is the already-authenticated caller of a core operation.
type Principal struct {
	UserID    string
	SchoolID  string
	StudentID string // set for Students only
	Roles     []string
}

func (p Principal) hasPrefix(prefix string) bool {
	for _, role := range p.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (p Principal) IsSuperAdmin() bool { return p.hasPrefix(RoleSuperAdmin) }

// IsAdmin reports whether p administers a School (super admins administer all of them).
func (p Principal) IsAdmin() bool   { return p.hasPrefix(RoleAdmin) || p.IsSuperAdmin() }
func (p Principal) IsTeacher() bool { return p.hasPrefix(RoleTeacher) }
func (p Principal) IsStudent() bool { return p.hasPrefix(RoleStudent) }
func (p Principal) IsParent() bool  { return p.hasPrefix(RoleParent) }

// CanAccessSchool reports whether p may see resources of the given School.
func (p Principal) CanAccessSchool(schoolID string) bool {
	return p.IsSuperAdmin() || (p.SchoolID != "" && p.SchoolID == schoolID)
}

// CanAdminSchool reports whether p may mutate resources of the given School.
func (p Principal) CanAdminSchool(schoolID string) bool {
	return p.IsSuperAdmin() || (p.hasPrefix(RoleAdmin) && p.SchoolID == schoolID)
}

func PrincipalOf(usr User) Principal {
	return Principal{UserID: usr.ID, SchoolID: usr.SchoolID, Roles: usr.Roles}
}
