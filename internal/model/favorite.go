package model

import (
	"time"

	"gorm.io/gorm"
)

// Favorite marks one book as a favorite of one user.
type Favorite struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	SchoolID  uint           `json:"school_id" gorm:"index;not null"`
	UserID    uint           `json:"user_id" gorm:"uniqueIndex:idx_favorite_user_book;not null"`
	BookID    uint           `json:"book_id" gorm:"uniqueIndex:idx_favorite_user_book;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Book *Book `json:"book,omitempty" gorm:"foreignKey:BookID"`
}
