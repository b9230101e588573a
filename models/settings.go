package models

import "time"

// Role classes understood by the XP aggregator.
const (
	RoleClassBadge  = "badge"
	RoleClassStreak = "streak"
)

// RoleAssignment is the configured XP contribution for one role. The map of
// assignments lives inside CommunitySettings.RoleAssignments so settings and
// mapping are loaded and saved atomically. Assigning a role does not rewrite
// historical streak ledger rows.
type RoleAssignment struct {
	XP    int64  `json:"xp"`
	Class string `json:"type"` // RoleClassBadge or RoleClassStreak
}

// CommunitySettings is the per-community configuration singleton.
// RoleAssignments is a JSON map role_id -> {"xp": n, "type": "badge"|"streak"};
// a legacy deployment stored role_id -> n, which SettingsService migrates on
// load (class defaults to badge).
type CommunitySettings struct {
	CommunityID     string `gorm:"primaryKey" json:"community_id"`
	LevelPingRoleID string `json:"level_ping_role_id"`
	QuestChannelID  string `json:"quest_channel_id"`
	OptInMessageID  string `json:"optin_message_id"`
	OptInChannelID  string `json:"optin_channel_id"`
	RoleAssignments string `gorm:"type:jsonb;default:'{}'" json:"role_assignments"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
