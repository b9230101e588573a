package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questbot-system/models"
)

func newSettingsService(t *testing.T) *SettingsService {
	t.Helper()
	return NewSettingsService(newTestDB(t), testLogger())
}

func TestSettingsGetCreatesOnFirstUse(t *testing.T) {
	svc := newSettingsService(t)

	settings, err := svc.Get("community-1")
	require.NoError(t, err)
	assert.Equal(t, "community-1", settings.CommunityID)
	assert.Equal(t, "{}", settings.RoleAssignments)

	var count int64
	require.NoError(t, svc.DB.Model(&models.CommunitySettings{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Second call is served from the cache as an independent copy.
	again, err := svc.Get("community-1")
	require.NoError(t, err)
	assert.NotSame(t, settings, again)
	assert.Equal(t, settings, again)
}

func TestSettingsGetReturnsPrivateCopy(t *testing.T) {
	svc := newSettingsService(t)

	dirty, err := svc.Get("community-1")
	require.NoError(t, err)
	// Unsaved edits must stay invisible to every other reader.
	dirty.QuestChannelID = "draft-channel"
	dirty.RoleAssignments = `{"r1": 25}`

	clean, err := svc.Get("community-1")
	require.NoError(t, err)
	assert.Empty(t, clean.QuestChannelID)
	assert.Equal(t, "{}", clean.RoleAssignments)

	require.NoError(t, svc.Save(dirty))
	saved, err := svc.Get("community-1")
	require.NoError(t, err)
	assert.Equal(t, "draft-channel", saved.QuestChannelID)

	// The cache entry is a copy of what was saved, not the caller's object.
	dirty.QuestChannelID = "mutated-after-save"
	saved, err = svc.Get("community-1")
	require.NoError(t, err)
	assert.Equal(t, "draft-channel", saved.QuestChannelID)
}

func TestSettingsSaveRefreshesCache(t *testing.T) {
	svc := newSettingsService(t)

	settings, err := svc.Get("community-1")
	require.NoError(t, err)

	updated := *settings
	updated.QuestChannelID = "chan-42"
	require.NoError(t, svc.Save(&updated))

	got, err := svc.Get("community-1")
	require.NoError(t, err)
	assert.Equal(t, "chan-42", got.QuestChannelID)
}

func TestAssignmentsMigratesLegacyFormat(t *testing.T) {
	svc := newSettingsService(t)

	settings, err := svc.Get("community-1")
	require.NoError(t, err)
	settings.RoleAssignments = `{"r1": 25, "r2": {"xp": 10, "type": "streak"}}`
	require.NoError(t, svc.Save(settings))

	assignments, err := svc.Assignments(settings)
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	// Bare int defaults to the badge class.
	assert.Equal(t, models.RoleAssignment{XP: 25, Class: models.RoleClassBadge}, assignments["r1"])
	assert.Equal(t, models.RoleAssignment{XP: 10, Class: models.RoleClassStreak}, assignments["r2"])

	// The migrated form was written back.
	var row models.CommunitySettings
	require.NoError(t, svc.DB.Where("community_id = ?", "community-1").First(&row).Error)
	var persisted map[string]models.RoleAssignment
	require.NoError(t, json.Unmarshal([]byte(row.RoleAssignments), &persisted))
	assert.Equal(t, models.RoleClassBadge, persisted["r1"].Class)
}

func TestAssignmentsEmptyAndCorrupt(t *testing.T) {
	svc := newSettingsService(t)

	settings, err := svc.Get("community-1")
	require.NoError(t, err)

	assignments, err := svc.Assignments(settings)
	require.NoError(t, err)
	assert.Empty(t, assignments)

	settings.RoleAssignments = `not json`
	_, err = svc.Assignments(settings)
	assert.Error(t, err)
}

func TestSetAssignmentsRoundTrip(t *testing.T) {
	svc := newSettingsService(t)

	settings, err := svc.Get("community-1")
	require.NoError(t, err)

	want := map[string]models.RoleAssignment{
		"r1": {XP: 100, Class: models.RoleClassBadge},
	}
	require.NoError(t, svc.SetAssignments(settings, want))

	got, err := svc.Assignments(settings)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
