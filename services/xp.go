package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"questbot-system/models"
)

// ReconcileScheduler hands a level transition to the per-key reconcile queue.
// Scheduling must never block the caller; execution order per key is the
// queue's responsibility.
type ReconcileScheduler interface {
	Schedule(userID, communityID string, oldLevel, newLevel int)
}

// XPBreakdown is the composition of a user's total XP.
type XPBreakdown struct {
	BaseXP   int64 `json:"base_xp"`
	BadgeXP  int64 `json:"badge_xp"`
	StreakXP int64 `json:"streak_xp"`
	TotalXP  int64 `json:"total_xp"`
}

// XPService computes total XP and owns the base-XP write path. Total XP is
// always re-derived from current role holdings plus the streak ledger, so
// losing a badge role reduces it on the next recompute without any explicit
// removal handling.
type XPService struct {
	DB         *gorm.DB
	Log        *zap.SugaredLogger
	Platform   Platform
	Settings   *SettingsService
	Streaks    *StreakService
	Reconciler ReconcileScheduler

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-(community,user) write guard
}

func NewXPService(db *gorm.DB, log *zap.SugaredLogger, platform Platform, settings *SettingsService, streaks *StreakService) *XPService {
	return &XPService{
		DB:       db,
		Log:      log,
		Platform: platform,
		Settings: settings,
		Streaks:  streaks,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *XPService) userLock(userID, communityID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := communityID + "/" + userID
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// EnsureUserRecord returns the user's record, creating a zero-XP level-1 row
// on first read. Records are never deleted.
func (s *XPService) EnsureUserRecord(userID, communityID string) (*models.UserRecord, error) {
	var rec models.UserRecord
	err := s.DB.Where("user_id = ? AND community_id = ?", userID, communityID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec = models.UserRecord{
			ID:          uuid.NewString(),
			UserID:      userID,
			CommunityID: communityID,
			BaseXP:      0,
			Level:       1,
		}
		if err := s.DB.Create(&rec).Error; err != nil {
			return nil, err
		}
		return &rec, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Breakdown computes the user's XP composition per the aggregation rule:
// base + badge-class roles currently held (markers excluded, unassigned
// "badge"-named roles at the fallback amount) + the full streak ledger.
// When the member's role set cannot be resolved the result degrades to base
// XP alone instead of failing.
func (s *XPService) Breakdown(ctx context.Context, userID, communityID string) (*XPBreakdown, error) {
	rec, err := s.EnsureUserRecord(userID, communityID)
	if err != nil {
		return nil, err
	}
	breakdown := &XPBreakdown{BaseXP: rec.BaseXP, TotalXP: rec.BaseXP}

	member, err := s.Platform.Member(ctx, communityID, userID)
	if err != nil {
		s.Log.Warnf("Member %s not resolvable in community %s, falling back to base XP: %v", userID, communityID, err)
		return breakdown, nil
	}

	settings, err := s.Settings.Get(communityID)
	if err != nil {
		return nil, err
	}
	assignments, err := s.Settings.Assignments(settings)
	if err != nil {
		return nil, err
	}

	for _, role := range member.Roles {
		c := ClassifyRole(assignments, role)
		if c.Kind == RoleBadge {
			breakdown.BadgeXP += c.XP
		}
		// Markers never contribute; streak roles count through the ledger
		// only, so current possession is irrelevant here.
	}

	streakXP, err := s.Streaks.AccumulatedStreakXP(userID, communityID)
	if err != nil {
		return nil, err
	}
	breakdown.StreakXP = streakXP

	breakdown.TotalXP = breakdown.BaseXP + breakdown.BadgeXP + breakdown.StreakXP
	return breakdown, nil
}

// TotalXP returns the fully derived score for the pair.
func (s *XPService) TotalXP(ctx context.Context, userID, communityID string) (int64, error) {
	breakdown, err := s.Breakdown(ctx, userID, communityID)
	if err != nil {
		return 0, err
	}
	return breakdown.TotalXP, nil
}

// UpdateBaseXP applies delta to the stored base XP (clamped at zero),
// recomputes total XP against live role state, and persists the new level if
// it changed, scheduling marker reconciliation without blocking. Returns the
// new total XP and level.
func (s *XPService) UpdateBaseXP(ctx context.Context, userID, communityID string, delta int64) (int64, int, error) {
	lock := s.userLock(userID, communityID)
	lock.Lock()
	defer lock.Unlock()

	return s.applyBaseXPDelta(ctx, userID, communityID, delta)
}

// applyBaseXPDelta is the write path body; callers hold the user lock.
func (s *XPService) applyBaseXPDelta(ctx context.Context, userID, communityID string, delta int64) (int64, int, error) {
	rec, err := s.EnsureUserRecord(userID, communityID)
	if err != nil {
		return 0, 0, err
	}
	oldLevel := rec.Level

	newBase := rec.BaseXP + delta
	if newBase < 0 {
		newBase = 0
	}
	if err := s.compareAndSetBaseXP(rec, newBase); err != nil {
		return 0, 0, err
	}

	totalXP, err := s.TotalXP(ctx, userID, communityID)
	if err != nil {
		return 0, 0, err
	}

	newLevel := LevelOf(totalXP)
	if newLevel != oldLevel {
		if err := s.DB.Model(&models.UserRecord{}).
			Where("id = ?", rec.ID).
			Update("level", newLevel).Error; err != nil {
			return 0, 0, err
		}
		if s.Reconciler != nil {
			s.Reconciler.Schedule(userID, communityID, oldLevel, newLevel)
		}
	}

	s.Log.Infof("🎮 XP updated: user=%s community=%s base=%d total=%d level=%d", userID, communityID, newBase, totalXP, newLevel)
	return totalXP, newLevel, nil
}

// compareAndSetBaseXP writes newBase only while the stored base still equals
// rec.BaseXP. A missed compare means the value moved underneath the caller's
// read; that surfaces as an error instead of a silently dropped write.
func (s *XPService) compareAndSetBaseXP(rec *models.UserRecord, newBase int64) error {
	res := s.DB.Model(&models.UserRecord{}).
		Where("id = ? AND base_xp = ?", rec.ID, rec.BaseXP).
		Update("base_xp", newBase)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("stale base XP read for user %s in community %s", rec.UserID, rec.CommunityID)
	}
	return nil
}

// SyncLevel re-derives the user's level from total XP without touching base
// XP, persisting and scheduling reconciliation only on a change. Role-gain
// triggers run through here.
func (s *XPService) SyncLevel(ctx context.Context, userID, communityID string) (oldLevel, newLevel int, totalXP int64, err error) {
	lock := s.userLock(userID, communityID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.EnsureUserRecord(userID, communityID)
	if err != nil {
		return 0, 0, 0, err
	}
	oldLevel = rec.Level

	totalXP, err = s.TotalXP(ctx, userID, communityID)
	if err != nil {
		return 0, 0, 0, err
	}

	newLevel = LevelOf(totalXP)
	if newLevel != oldLevel {
		if err := s.DB.Model(&models.UserRecord{}).
			Where("id = ?", rec.ID).
			Update("level", newLevel).Error; err != nil {
			return 0, 0, 0, err
		}
		if s.Reconciler != nil {
			s.Reconciler.Schedule(userID, communityID, oldLevel, newLevel)
		}
	}
	return oldLevel, newLevel, totalXP, nil
}

// IsEnrolled reports whether the user currently holds any level-marker role.
// Enrollment is represented only by role possession, so it is recomputed
// from the platform on every check; unresolvable members count as not
// enrolled.
func (s *XPService) IsEnrolled(ctx context.Context, userID, communityID string) bool {
	member, err := s.Platform.Member(ctx, communityID, userID)
	if err != nil {
		return false
	}
	for _, role := range member.Roles {
		if IsMarkerRole(role.Name) {
			return true
		}
	}
	return false
}

// SetBaseXP sets base XP to an absolute amount by applying the difference.
// Read and apply happen under the same user lock; a concurrent delta cannot
// slip between them and shift what "absolute" lands on.
func (s *XPService) SetBaseXP(ctx context.Context, userID, communityID string, amount int64) (int64, int, error) {
	lock := s.userLock(userID, communityID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.EnsureUserRecord(userID, communityID)
	if err != nil {
		return 0, 0, err
	}
	return s.applyBaseXPDelta(ctx, userID, communityID, amount-rec.BaseXP)
}
