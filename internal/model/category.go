package model

import (
	"time"

	"gorm.io/gorm"
)

// Category groups a school's books. Names repeat across schools but are
// unique within one.
type Category struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	SchoolID  uint           `json:"school_id" gorm:"uniqueIndex:idx_category_school_name;not null"`
	Name      string         `json:"name" gorm:"type:varchar(100);uniqueIndex:idx_category_school_name;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
