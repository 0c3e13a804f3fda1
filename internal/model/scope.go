package model

import "gorm.io/gorm"

// BySchool restricts a query to rows owned by one school. Every read and
// write against school-owned tables goes through this scope; only the
// developer role ever addresses another school's id.
func BySchool(schoolID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("school_id = ?", schoolID)
	}
}
