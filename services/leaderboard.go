package services

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"questbot-system/models"
)

// LeaderboardService is a read-only aggregation over the XP aggregator for
// all enrolled users of a community. Each call recomputes TotalXP per user;
// community role sets are small enough that this stays cheap.
type LeaderboardService struct {
	DB  *gorm.DB
	Log *zap.SugaredLogger
	XP  *XPService
}

func NewLeaderboardService(db *gorm.DB, log *zap.SugaredLogger, xp *XPService) *LeaderboardService {
	return &LeaderboardService{DB: db, Log: log, XP: xp}
}

// TopN returns up to n entries ordered by total XP descending. Users without
// a marker role are excluded even when they hold stored base XP.
func (s *LeaderboardService) TopN(ctx context.Context, communityID string, n int) ([]models.LeaderboardEntry, error) {
	if n <= 0 {
		n = 10
	}

	var records []models.UserRecord
	if err := s.DB.Where("community_id = ?", communityID).Find(&records).Error; err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, 0, len(records))
	for _, rec := range records {
		if !s.XP.IsEnrolled(ctx, rec.UserID, communityID) {
			continue
		}
		totalXP, err := s.XP.TotalXP(ctx, rec.UserID, communityID)
		if err != nil {
			s.Log.Warnf("Leaderboard: skipping user %s: %v", rec.UserID, err)
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			UserID:  rec.UserID,
			TotalXP: totalXP,
			Level:   LevelOf(totalXP),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalXP > entries[j].TotalXP
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// LevelTable returns the threshold listing shown alongside the leaderboard.
func LevelTable() []map[string]int64 {
	table := make([]map[string]int64, 0, MaxLevel)
	for level := MinLevel; level <= MaxLevel; level++ {
		table = append(table, map[string]int64{
			"level": int64(level),
			"xp":    ThresholdFor(level),
		})
	}
	return table
}
