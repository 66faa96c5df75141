package models

import "time"

// Setting stores a runtime-tunable value keyed by name.
type Setting struct {
	Key       string    `gorm:"type:varchar(128);primaryKey"` // Setting key.
	Value     JSONValue `gorm:"default:null"`                 // JSON encoded value.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`      // Last update timestamp.
}
