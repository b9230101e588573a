package services

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"questbot-system/models"
)

// StreakService owns the append-only streak ledger. It performs no
// de-duplication: callers append exactly once per observed absent→present
// role transition, which the role-diff reactor guarantees.
type StreakService struct {
	DB  *gorm.DB
	Log *zap.SugaredLogger
}

func NewStreakService(db *gorm.DB, log *zap.SugaredLogger) *StreakService {
	return &StreakService{DB: db, Log: log}
}

// RecordStreakGain appends one ledger entry, unconditionally.
func (s *StreakService) RecordStreakGain(userID, communityID, roleID, roleName string, xpAmount int64) error {
	entry := models.StreakGainEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		CommunityID: communityID,
		RoleID:      roleID,
		RoleName:    roleName,
		XPAwarded:   xpAmount,
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		return err
	}
	s.Log.Infof("Recorded streak role gain: %s (+%d XP) for user %s", roleName, xpAmount, userID)
	return nil
}

// AccumulatedStreakXP sums every ledger entry for the pair; 0 when none.
func (s *StreakService) AccumulatedStreakXP(userID, communityID string) (int64, error) {
	var total *int64
	err := s.DB.Model(&models.StreakGainEntry{}).
		Select("SUM(xp_awarded)").
		Where("user_id = ? AND community_id = ?", userID, communityID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
