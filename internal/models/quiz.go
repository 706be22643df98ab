package models

import (
	"time"

	"gorm.io/datatypes"
)

// Quiz stores the access policy of one quiz.
type Quiz struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name string `gorm:"type:varchar(255);not null"` // Display name.

	Attempts   int   `gorm:"not null;default:0"` // Attempt cap, 0 means unlimited.
	TimeLimit  int64 `gorm:"not null;default:0"` // Attempt time limit in seconds.
	TimeOpen   int64 `gorm:"not null;default:0"` // Open timestamp (epoch seconds).
	TimeClose  int64 `gorm:"not null;default:0"` // Close timestamp (epoch seconds).
	DelayFirst int64 `gorm:"not null;default:0"` // Wait after the first attempt (seconds).
	DelayLater int64 `gorm:"not null;default:0"` // Wait after later attempts (seconds).

	Password       string         `gorm:"type:text"`             // Quiz password.
	ExtraPasswords datatypes.JSON `gorm:"not null;default:'[]'"` // Override passwords.

	Subnet          string `gorm:"type:text"`                             // Allowed client subnets.
	BrowserSecurity string `gorm:"type:varchar(32);not null;default:'-'"` // Display mode.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
