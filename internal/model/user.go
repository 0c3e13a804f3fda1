package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Roles a user can hold. DEVELOPER is the cross-school super-role and is
// never tied to a school; ADMIN and MEMBER always belong to one school.
const (
	RoleDeveloper = "DEVELOPER"
	RoleAdmin     = "ADMIN"
	RoleMember    = "MEMBER"
)

// Approval status of a membership. Rejected records are soft-retained and
// block the same email from registering again.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

var (
	ErrMemberNeedsSchool  = errors.New("approved member must belong to a school")
	ErrDeveloperHasSchool = errors.New("developer must not belong to a school")
)

// User represents the membership of one identity, bound to at most one school.
type User struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Email        string         `json:"email" gorm:"type:varchar(100);uniqueIndex;not null"`
	Password     string         `json:"-" gorm:"type:varchar(255)"`
	Name         string         `json:"name" gorm:"type:varchar(100)"`
	SchoolID     *uint          `json:"school_id,omitempty" gorm:"index"`
	Role         string         `json:"role" gorm:"type:varchar(20);not null;default:'MEMBER'"`
	Status       string         `json:"status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	IsMainAdmin  bool           `json:"is_main_admin" gorm:"default:false"`
	Class        string         `json:"class,omitempty" gorm:"type:varchar(50)"`
	Section      string         `json:"section,omitempty" gorm:"type:varchar(50)"`
	StudentNumber string        `json:"student_number,omitempty" gorm:"type:varchar(50)"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	School *School `json:"school,omitempty" gorm:"foreignKey:SchoolID"`
}

// Validate checks the role/school invariants before a user row is written.
func (u *User) Validate() error {
	switch u.Role {
	case RoleDeveloper:
		if u.SchoolID != nil {
			return ErrDeveloperHasSchool
		}
	case RoleMember, RoleAdmin:
		if u.Status == StatusApproved && u.SchoolID == nil {
			return ErrMemberNeedsSchool
		}
	}
	return nil
}

// BeforeSave enforces the invariants at the gorm layer as well, so no code
// path can persist a row that violates them.
func (u *User) BeforeSave(tx *gorm.DB) error {
	return u.Validate()
}
