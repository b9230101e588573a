package models

import (
	"encoding/json"
	"time"
)

// QuestRecord is a tracked quest message. Members complete it by reacting
// with the approval emoji; CompletedUsers is the idempotence guard, so a
// user is appended at most once no matter how often the reaction fires.
type QuestRecord struct {
	MessageID   string `gorm:"primaryKey" json:"message_id"`
	CommunityID string `gorm:"index;not null" json:"community_id"`
	ChannelID   string `json:"channel_id"`
	Title       string `json:"title"`
	Content     string `gorm:"type:text" json:"content"`

	// JSON array of user ids, e.g. ["123","456"]
	CompletedUsers string `gorm:"type:jsonb;default:'[]'" json:"completed_users"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// CompletedSet decodes CompletedUsers. A corrupt column yields an empty set
// rather than an error; the quest stays completable.
func (q *QuestRecord) CompletedSet() []string {
	var users []string
	if err := json.Unmarshal([]byte(q.CompletedUsers), &users); err != nil {
		return nil
	}
	return users
}

// HasCompleted reports whether userID is already in the completed set.
func (q *QuestRecord) HasCompleted(userID string) bool {
	for _, id := range q.CompletedSet() {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkCompleted appends userID to the completed set. Returns false without
// modifying anything if the user already completed the quest.
func (q *QuestRecord) MarkCompleted(userID string) bool {
	if q.HasCompleted(userID) {
		return false
	}
	users := append(q.CompletedSet(), userID)
	encoded, err := json.Marshal(users)
	if err != nil {
		return false
	}
	q.CompletedUsers = string(encoded)
	return true
}
