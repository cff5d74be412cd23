package profiles

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sunroad-co/sunroad-backend/pkg/db/models"
	"github.com/sunroad-co/sunroad-backend/pkg/enums"
)

func setupProfilesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS profiles (
  id TEXT NOT NULL PRIMARY KEY,
  account_id TEXT NOT NULL UNIQUE,
  handle TEXT NOT NULL UNIQUE,
  tier TEXT NOT NULL DEFAULT 'free',
  tier_synced_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func TestRepositoryUpdateTier(t *testing.T) {
	db := setupProfilesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	accountID := uuid.New()

	require.NoError(t, db.Create(&models.Profile{
		ID:        uuid.New(),
		AccountID: accountID,
		Handle:    "sunroad-gallery",
		Tier:      enums.EntitlementTierFree,
	}).Error)

	syncedAt := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	updated, err := repo.UpdateTier(ctx, accountID, enums.EntitlementTierPro, syncedAt)
	require.NoError(t, err)
	assert.True(t, updated)

	profile, err := repo.FindByAccountID(ctx, accountID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, enums.EntitlementTierPro, profile.Tier)
	require.NotNil(t, profile.TierSyncedAt)
	assert.Equal(t, syncedAt, profile.TierSyncedAt.UTC())
}

func TestRepositoryUpdateTierMissingProfile(t *testing.T) {
	db := setupProfilesTestDB(t)
	repo := NewRepository(db)

	updated, err := repo.UpdateTier(context.Background(), uuid.New(), enums.EntitlementTierPro, time.Now())
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestRepositoryFindByAccountIDMissing(t *testing.T) {
	db := setupProfilesTestDB(t)
	repo := NewRepository(db)

	profile, err := repo.FindByAccountID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, profile)
}
