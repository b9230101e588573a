package models

import "time"

// StreakGainEntry is one row of the append-only streak ledger. Entries are
// never updated or deleted: a streak role lost and regained produces a new
// row each time, which is what lets re-gains count again. XPAwarded is the
// amount in effect at gain time; later reconfiguration does not touch it.
type StreakGainEntry struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"` // assigned in Go, never by the DB
	UserID      string    `gorm:"index:idx_streak_user_community" json:"user_id"`
	CommunityID string    `gorm:"index:idx_streak_user_community" json:"community_id"`
	RoleID      string    `json:"role_id"`
	RoleName    string    `json:"role_name"`
	XPAwarded   int64     `json:"xp_awarded"`
	GainedAt    time.Time `json:"gained_at" gorm:"autoCreateTime"`
}
