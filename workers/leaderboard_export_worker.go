package workers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"questbot-system/models"
	"questbot-system/services"
	"questbot-system/utils"
)

// LeaderboardExportWorker periodically snapshots each configured community's
// top 10 to R2 as JSON. Export is best-effort reporting: a failed community
// is logged and skipped, never retried within the tick.
type LeaderboardExportWorker struct {
	DB          *gorm.DB
	Log         *zap.SugaredLogger
	Platform    services.Platform
	Leaderboard *services.LeaderboardService
}

func NewLeaderboardExportWorker(db *gorm.DB, log *zap.SugaredLogger, platform services.Platform, leaderboard *services.LeaderboardService) *LeaderboardExportWorker {
	return &LeaderboardExportWorker{
		DB:          db,
		Log:         log,
		Platform:    platform,
		Leaderboard: leaderboard,
	}
}

// Start schedules the hourly export. The returned scheduler is already
// running; callers shut it down with Shutdown.
func (w *LeaderboardExportWorker) Start(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			w.exportAll(ctx)
		}),
	)
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func (w *LeaderboardExportWorker) exportAll(ctx context.Context) {
	var communities []models.CommunitySettings
	if err := w.DB.Find(&communities).Error; err != nil {
		w.Log.Warnf("[Export] DB error listing communities: %v", err)
		return
	}

	for _, community := range communities {
		if err := w.exportOne(ctx, community.CommunityID); err != nil {
			w.Log.Warnf("[Export] Failed to export leaderboard for community %s: %v", community.CommunityID, err)
		}
	}
}

func (w *LeaderboardExportWorker) exportOne(ctx context.Context, communityID string) error {
	entries, err := w.Leaderboard.TopN(ctx, communityID, 10)
	if err != nil {
		return err
	}

	name, err := w.Platform.CommunityName(ctx, communityID)
	if err != nil {
		name = communityID // snapshot still useful without the display name
	}

	payload, err := json.Marshal(map[string]any{
		"community_id": communityID,
		"community":    name,
		"exported_at":  time.Now().UTC().Format(time.RFC3339),
		"entries":      entries,
		"levels":       services.LevelTable(),
	})
	if err != nil {
		return err
	}

	key := "leaderboards/" + slug.Make(name) + "/" + time.Now().UTC().Format("2006-01-02T15") + ".json"
	url, err := utils.UploadJSONToR2(ctx, key, payload)
	if err != nil {
		return err
	}
	w.Log.Infof("✅ Exported leaderboard snapshot for %s: %s", name, url)
	return nil
}
