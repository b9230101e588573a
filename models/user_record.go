package models

import (
	"time"

	"gorm.io/gorm"
)

// UserRecord tracks per-community XP progression for a single member.
// BaseXP only holds quest completions and manual grants; role bonuses and
// streak gains are recomputed on read, never cached here.
type UserRecord struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"` // assigned in Go, never by the DB
	UserID      string `gorm:"index:idx_user_community,unique;not null" json:"user_id"`
	CommunityID string `gorm:"index:idx_user_community,unique;not null" json:"community_id"`

	BaseXP int64 `json:"base_xp" gorm:"default:0"` // clamped >= 0 on every write
	Level  int   `json:"level" gorm:"default:1"`   // cache of LevelOf(total), 1..10

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
