package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleApplicant     UserRole = "applicant"
	RoleAcademicStaff UserRole = "academic_staff"
	RoleSystemAdmin   UserRole = "system_admin"
)

// IsValid reports whether the value is a known role.
func (r UserRole) IsValid() bool {
	switch r {
	case RoleApplicant, RoleAcademicStaff, RoleSystemAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role may act on other users' requests.
func (r UserRole) IsStaff() bool {
	return r == RoleAcademicStaff || r == RoleSystemAdmin
}

// User mirrors the SSO-provisioned users table. Accounts are created and
// deactivated by the identity sync job; this service only reads them.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
