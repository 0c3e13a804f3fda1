package model

import (
	"time"

	"gorm.io/gorm"
)

// Loan lifecycle states.
const (
	LoanActive   = "ACTIVE"
	LoanReturned = "RETURNED"
)

// Loan represents one borrowed copy of a book.
type Loan struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	SchoolID     uint           `json:"school_id" gorm:"index;not null"`
	BookID       uint           `json:"book_id" gorm:"index;not null"`
	UserID       uint           `json:"user_id" gorm:"index;not null"`
	Status       string         `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	BorrowedAt   time.Time      `json:"borrowed_at"`
	DueAt        time.Time      `json:"due_at"`
	ReturnedAt   *time.Time     `json:"returned_at,omitempty"`
	RenewalCount int            `json:"renewal_count" gorm:"default:0"`
	FineAmount   float64        `json:"fine_amount" gorm:"default:0"`
	FinePaid     bool           `json:"fine_paid" gorm:"default:false"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Book *Book `json:"book,omitempty" gorm:"foreignKey:BookID"`
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Overdue reports whether the loan is past due at the given instant.
func (l *Loan) Overdue(now time.Time) bool {
	return l.Status == LoanActive && now.After(l.DueAt)
}

// FineFor computes the fine owed for a return at the given instant.
// Partial days count as a full day.
func (l *Loan) FineFor(now time.Time, perDay float64) float64 {
	if !now.After(l.DueAt) {
		return 0
	}
	days := int(now.Sub(l.DueAt).Hours() / 24)
	if now.Sub(l.DueAt)%(24*time.Hour) > 0 {
		days++
	}
	return float64(days) * perDay
}
