package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questbot-system/models"
)

func TestAccumulatedStreakXPEmptyLedger(t *testing.T) {
	svc := NewStreakService(newTestDB(t), testLogger())

	total, err := svc.AccumulatedStreakXP("user-1", "community-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestStreakRegainAwardsAgain(t *testing.T) {
	svc := NewStreakService(newTestDB(t), testLogger())

	// Gaining the same streak role twice (lost in between) pays twice.
	require.NoError(t, svc.RecordStreakGain("user-1", "community-1", "r1", "1 Week", 10))
	require.NoError(t, svc.RecordStreakGain("user-1", "community-1", "r1", "1 Week", 10))

	total, err := svc.AccumulatedStreakXP("user-1", "community-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)

	var count int64
	require.NoError(t, svc.DB.Model(&models.StreakGainEntry{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestAccumulatedStreakXPScopedToPair(t *testing.T) {
	svc := NewStreakService(newTestDB(t), testLogger())

	require.NoError(t, svc.RecordStreakGain("user-1", "community-1", "r1", "1 Week", 10))
	require.NoError(t, svc.RecordStreakGain("user-1", "community-2", "r1", "1 Week", 30))
	require.NoError(t, svc.RecordStreakGain("user-2", "community-1", "r2", "1 Month", 50))

	total, err := svc.AccumulatedStreakXP("user-1", "community-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
}
