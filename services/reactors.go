package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"questbot-system/models"
	"questbot-system/utils"
)

// ApprovalEmoji marks both quest completions and opt-ins.
const ApprovalEmoji = "✅"

// ReactionEvent is a reaction-added delivery from the platform gateway.
type ReactionEvent struct {
	CommunityID string `json:"community_id"`
	ChannelID   string `json:"channel_id"`
	MessageID   string `json:"message_id"`
	UserID      string `json:"user_id"`
	Emoji       string `json:"emoji"`
	FromBot     bool   `json:"from_bot"`
}

// MemberRolesEvent is a member-role-changed delivery carrying before/after
// role snapshots. The diff is computed here, not by polling, so each gain
// transition is observed exactly once.
type MemberRolesEvent struct {
	CommunityID string `json:"community_id"`
	UserID      string `json:"user_id"`
	Before      []Role `json:"before"`
	After       []Role `json:"after"`
}

// ReactorService wires the three external triggers into the XP aggregator,
// streak ledger, and role synchronizer. Every failure is recovered here;
// nothing a reactor does may take down the event flow.
type ReactorService struct {
	DB       *gorm.DB
	Log      *zap.SugaredLogger
	Platform Platform
	XP       *XPService
	Streaks  *StreakService
	Settings *SettingsService
	RoleSync *RoleSyncService

	mu         sync.Mutex
	questLocks map[string]*sync.Mutex // per-quest completed-set write guard
}

func NewReactorService(db *gorm.DB, log *zap.SugaredLogger, platform Platform, xp *XPService, streaks *StreakService, settings *SettingsService, roleSync *RoleSyncService) *ReactorService {
	return &ReactorService{
		DB:         db,
		Log:        log,
		Platform:   platform,
		XP:         xp,
		Streaks:    streaks,
		Settings:   settings,
		RoleSync:   roleSync,
		questLocks: make(map[string]*sync.Mutex),
	}
}

func (r *ReactorService) questLock(messageID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.questLocks[messageID]
	if !ok {
		lock = &sync.Mutex{}
		r.questLocks[messageID] = lock
	}
	return lock
}

// HandleReaction processes an approval reaction: opt-in when it lands on the
// community's opt-in message, quest completion when it lands on a tracked
// quest. Anything else is ignored.
func (r *ReactorService) HandleReaction(ctx context.Context, ev ReactionEvent) error {
	if ev.FromBot || ev.Emoji != ApprovalEmoji {
		return nil
	}

	settings, err := r.Settings.Get(ev.CommunityID)
	if err != nil {
		return err
	}
	if settings.OptInMessageID != "" && ev.MessageID == settings.OptInMessageID {
		return r.handleOptIn(ctx, ev)
	}
	return r.handleQuestCompletion(ctx, ev)
}

// handleOptIn grants the Level 1 marker to a member holding no marker role
// yet and initializes their record. Already-enrolled members are a no-op.
// This is the sole enrollment path.
func (r *ReactorService) handleOptIn(ctx context.Context, ev ReactionEvent) error {
	member, err := r.Platform.Member(ctx, ev.CommunityID, ev.UserID)
	if err != nil {
		r.Log.Warnf("Opt-in: member %s not resolvable in community %s: %v", ev.UserID, ev.CommunityID, err)
		return nil
	}
	for _, role := range member.Roles {
		if IsMarkerRole(role.Name) {
			return nil // already enrolled
		}
	}

	levelOne, err := r.markerRole(ctx, ev.CommunityID, MinLevel)
	if err != nil || levelOne == nil {
		r.Log.Warnf("Opt-in: Level 1 role unavailable in community %s: %v", ev.CommunityID, err)
		return nil
	}
	if err := r.Platform.AddRole(ctx, ev.CommunityID, ev.UserID, levelOne.ID); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			r.Log.Warnf("Failed to assign Level 1 role to %s — insufficient permissions", member.DisplayName)
			return nil
		}
		return err
	}

	if _, err := r.XP.EnsureUserRecord(ev.UserID, ev.CommunityID); err != nil {
		return err
	}

	r.notifyChannel(ctx, ev.CommunityID, ev.ChannelID, fmt.Sprintf(
		"✅ Welcome to QuestBot! <@%s> has opted into the QuestBot system!\nYou can now earn XP, complete quests, and appear on the leaderboard.",
		ev.UserID))
	r.Log.Infof("User %s opted into QuestBot system in community %s", ev.UserID, ev.CommunityID)
	return nil
}

// handleQuestCompletion awards quest XP exactly once per user per quest. The
// completed set is the only idempotence guard; reaction removal is not
// tracked. The per-quest lock covers the whole load-append-write of the set,
// and the set is persisted before the award so a failure between the two can
// never pay the same user twice.
func (r *ReactorService) handleQuestCompletion(ctx context.Context, ev ReactionEvent) error {
	lock := r.questLock(ev.MessageID)
	lock.Lock()
	defer lock.Unlock()

	var quest models.QuestRecord
	err := r.DB.Where("message_id = ?", ev.MessageID).First(&quest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil // not a tracked quest message
	}
	if err != nil {
		return err
	}

	if !r.XP.IsEnrolled(ctx, ev.UserID, ev.CommunityID) {
		return nil
	}
	if !quest.MarkCompleted(ev.UserID) {
		return nil // already completed
	}

	if err := r.DB.Model(&models.QuestRecord{}).
		Where("message_id = ?", quest.MessageID).
		Update("completed_users", quest.CompletedUsers).Error; err != nil {
		return err
	}

	totalXP, level, err := r.XP.UpdateBaseXP(ctx, ev.UserID, ev.CommunityID, questCompletionXP)
	if err != nil {
		return err
	}

	r.notifyChannel(ctx, ev.CommunityID, ev.ChannelID, fmt.Sprintf(
		"Quest Completed! <@%s> completed: **%s**\n+%d XP (Total: %s, Level %d)",
		ev.UserID, quest.Title, questCompletionXP, utils.FormatXP(totalXP), level))
	return nil
}

// HandleMemberRoles reacts to a role-set change. Only newly gained roles
// matter: streak gains append to the ledger before the level re-derivation,
// badge gains just re-derive. Lost roles need no handling because TotalXP is
// recomputed from current holdings on every read.
func (r *ReactorService) HandleMemberRoles(ctx context.Context, ev MemberRolesEvent) error {
	added := diffRoles(ev.Before, ev.After)
	if len(added) == 0 {
		return nil
	}

	settings, err := r.Settings.Get(ev.CommunityID)
	if err != nil {
		return err
	}
	assignments, err := r.Settings.Assignments(settings)
	if err != nil {
		return err
	}

	for _, role := range added {
		if !r.XP.IsEnrolled(ctx, ev.UserID, ev.CommunityID) {
			continue
		}

		c := ClassifyRole(assignments, role)
		switch c.Kind {
		case RoleStreak:
			if err := r.Streaks.RecordStreakGain(ev.UserID, ev.CommunityID, role.ID, role.Name, c.XP); err != nil {
				r.Log.Warnf("Failed to record streak gain of %q for user %s: %v", role.Name, ev.UserID, err)
				continue
			}
			oldLevel, newLevel, totalXP, err := r.XP.SyncLevel(ctx, ev.UserID, ev.CommunityID)
			if err != nil {
				r.Log.Warnf("Level sync after streak gain failed for user %s: %v", ev.UserID, err)
				continue
			}
			r.announce(ctx, ev.CommunityID, fmt.Sprintf(
				"🔥 Streak Role Gained! <@%s> gained **%s** role!\n+%d Streak XP accumulated (Total: %s)%s",
				ev.UserID, role.Name, c.XP, utils.FormatXP(totalXP), levelUpSuffix(oldLevel, newLevel)))

		case RoleBadge:
			oldLevel, newLevel, totalXP, err := r.XP.SyncLevel(ctx, ev.UserID, ev.CommunityID)
			if err != nil {
				r.Log.Warnf("Level sync after badge gain failed for user %s: %v", ev.UserID, err)
				continue
			}
			r.announce(ctx, ev.CommunityID, fmt.Sprintf(
				"🏅 Role Gained! <@%s> gained **%s** role!\n+%d XP (Total: %s)%s",
				ev.UserID, role.Name, c.XP, utils.FormatXP(totalXP), levelUpSuffix(oldLevel, newLevel)))
		}
		// Markers and unclassified roles carry no XP.
	}
	return nil
}

func levelUpSuffix(oldLevel, newLevel int) string {
	if oldLevel == newLevel {
		return ""
	}
	return fmt.Sprintf(" → Level %d!", newLevel)
}

func diffRoles(before, after []Role) []Role {
	had := make(map[string]bool, len(before))
	for _, role := range before {
		had[role.ID] = true
	}
	var added []Role
	for _, role := range after {
		if !had[role.ID] {
			added = append(added, role)
		}
	}
	return added
}

// markerRole finds the marker for level, creating the full set if absent.
func (r *ReactorService) markerRole(ctx context.Context, communityID string, level int) (*Role, error) {
	name := MarkerRoleName(level)
	roles, err := r.Platform.Roles(ctx, communityID)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if roles[i].Name == name {
			return &roles[i], nil
		}
	}

	r.Log.Infof("%s role not found - creating level roles", name)
	if err := r.RoleSync.EnsureMarkerRoles(ctx, communityID); err != nil {
		return nil, err
	}
	roles, err = r.Platform.Roles(ctx, communityID)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if roles[i].Name == name {
			return &roles[i], nil
		}
	}
	return nil, nil
}

func (r *ReactorService) notifyChannel(ctx context.Context, communityID, channelID, content string) {
	if _, err := r.Platform.PostMessage(ctx, communityID, channelID, content); err != nil {
		r.Log.Warnf("Failed to post notification in channel %s: %v", channelID, err)
	}
}

func (r *ReactorService) announce(ctx context.Context, communityID, content string) {
	if err := r.Platform.Announce(ctx, communityID, content); err != nil {
		r.Log.Warnf("Failed to announce in community %s: %v", communityID, err)
	}
}
