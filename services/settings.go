package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"questbot-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SettingsService loads and saves per-community configuration, including the
// role-assignment map. Loaded settings are cached per community and the
// cache entry is replaced on every save, so components always receive an
// explicit settings object instead of reading process globals. Get hands out
// a private copy: callers mutate it freely and nothing is shared until Save.
type SettingsService struct {
	DB  *gorm.DB
	Log *zap.SugaredLogger

	mu    sync.Mutex
	cache map[string]*models.CommunitySettings
}

func NewSettingsService(db *gorm.DB, log *zap.SugaredLogger) *SettingsService {
	return &SettingsService{
		DB:    db,
		Log:   log,
		cache: make(map[string]*models.CommunitySettings),
	}
}

// Get returns a copy of the community's settings, creating an empty row on
// first use. The cached entry is never exposed, so in-place edits on the
// returned object cannot race other readers or leak before Save.
func (s *SettingsService) Get(communityID string) (*models.CommunitySettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[communityID]; ok {
		cp := *cached
		return &cp, nil
	}

	var settings models.CommunitySettings
	err := s.DB.Where("community_id = ?", communityID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = models.CommunitySettings{CommunityID: communityID, RoleAssignments: "{}"}
		if err := s.DB.Create(&settings).Error; err != nil {
			return nil, fmt.Errorf("failed to create settings for community %s: %w", communityID, err)
		}
	} else if err != nil {
		return nil, err
	}

	s.cache[communityID] = &settings
	cp := settings
	return &cp, nil
}

// Save persists settings and refreshes the cache entry. On failure the cache
// keeps its previous value, matching the store.
func (s *SettingsService) Save(settings *models.CommunitySettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.DB.Save(settings).Error; err != nil {
		return fmt.Errorf("failed to save settings for community %s: %w", settings.CommunityID, err)
	}
	cp := *settings
	s.cache[settings.CommunityID] = &cp
	return nil
}

// Assignments decodes the role-assignment map, migrating the legacy
// role_id -> xp format in place. Legacy entries default to the badge class;
// the migrated form is written back so the upgrade happens once.
func (s *SettingsService) Assignments(settings *models.CommunitySettings) (map[string]models.RoleAssignment, error) {
	assignments := make(map[string]models.RoleAssignment)
	raw := settings.RoleAssignments
	if raw == "" {
		raw = "{}"
	}

	var loose map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return nil, fmt.Errorf("corrupt role assignments for community %s: %w", settings.CommunityID, err)
	}

	migrated := false
	for roleID, entry := range loose {
		var a models.RoleAssignment
		if err := json.Unmarshal(entry, &a); err == nil && a.Class != "" {
			assignments[roleID] = a
			continue
		}

		// Legacy bare-integer format.
		var xp int64
		if err := json.Unmarshal(entry, &xp); err != nil {
			return nil, fmt.Errorf("unreadable role assignment %s for community %s", roleID, settings.CommunityID)
		}
		assignments[roleID] = models.RoleAssignment{XP: xp, Class: models.RoleClassBadge}
		migrated = true
	}

	if migrated {
		s.Log.Warnf("⚠️ Migrated legacy role XP assignments for community %s", settings.CommunityID)
		if err := s.SetAssignments(settings, assignments); err != nil {
			// Migration persists best-effort; the in-memory map is already usable.
			s.Log.Warnf("Failed to persist migrated role assignments: %v", err)
		}
	}

	return assignments, nil
}

// SetAssignments encodes and saves the role-assignment map.
func (s *SettingsService) SetAssignments(settings *models.CommunitySettings, assignments map[string]models.RoleAssignment) error {
	encoded, err := json.Marshal(assignments)
	if err != nil {
		return err
	}
	settings.RoleAssignments = string(encoded)
	return s.Save(settings)
}
