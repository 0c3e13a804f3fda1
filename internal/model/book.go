package model

import (
	"time"

	"gorm.io/gorm"
)

// Book represents one catalog title of a school, with a copy counter
// decremented on borrow and incremented on return.
type Book struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	SchoolID      uint           `json:"school_id" gorm:"index;not null"`
	CategoryID    uint           `json:"category_id" gorm:"index"`
	Title         string         `json:"title" gorm:"type:varchar(255);not null"`
	Author        string         `json:"author" gorm:"type:varchar(255)"`
	ISBN          string         `json:"isbn" gorm:"type:varchar(20);index"`
	Publisher     string         `json:"publisher,omitempty" gorm:"type:varchar(255)"`
	PublishedYear int            `json:"published_year,omitempty"`
	Description   string         `json:"description,omitempty" gorm:"type:text"`
	CoverURL      string         `json:"cover_url,omitempty" gorm:"type:varchar(255)"`
	TotalCopies   int            `json:"total_copies" gorm:"default:1"`
	Available     int            `json:"available" gorm:"default:1"`
	Active        bool           `json:"active" gorm:"default:true"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Category *Category `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
}
