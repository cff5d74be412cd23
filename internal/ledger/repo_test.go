package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sunroad-co/sunroad-backend/pkg/db/models"
	"github.com/sunroad-co/sunroad-backend/pkg/enums"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS webhook_events (
  id TEXT NOT NULL PRIMARY KEY,
  stripe_event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  last_error TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func newLedgerEvent(eventID, eventType string) *models.WebhookEvent {
	return &models.WebhookEvent{
		ID:            uuid.New(),
		StripeEventID: eventID,
		EventType:     eventType,
		Status:        enums.WebhookEventStatusPending,
	}
}

func TestRepositoryInsertFirstDeliveryWins(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	created, err := repo.Insert(ctx, newLedgerEvent("evt_1", "invoice.paid"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Insert(ctx, newLedgerEvent("evt_1", "invoice.paid"))
	require.NoError(t, err)
	assert.False(t, created, "second delivery of the same event must not claim")

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryReclaimFailedOnly(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	_, err := repo.Insert(ctx, newLedgerEvent("evt_1", "customer.subscription.updated"))
	require.NoError(t, err)

	// Pending records are in flight and must not be reclaimed.
	reclaimed, err := repo.ReclaimFailed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, reclaimed)

	msg := "store unavailable"
	moved, err := repo.Transition(ctx, "evt_1", enums.WebhookEventStatusPending, enums.WebhookEventStatusFailed, &msg)
	require.NoError(t, err)
	require.True(t, moved)

	reclaimed, err = repo.ReclaimFailed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, reclaimed)

	record, err := repo.Find(ctx, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, enums.WebhookEventStatusPending, record.Status)
	assert.Nil(t, record.LastError, "reclaim clears the previous error")

	// A reclaimed record is pending again and cannot be reclaimed twice.
	reclaimed, err = repo.ReclaimFailed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, reclaimed)
}

func TestRepositoryTransitionGuardsSourceStatus(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	_, err := repo.Insert(ctx, newLedgerEvent("evt_1", "checkout.session.completed"))
	require.NoError(t, err)

	moved, err := repo.Transition(ctx, "evt_1", enums.WebhookEventStatusPending, enums.WebhookEventStatusDone, nil)
	require.NoError(t, err)
	assert.True(t, moved)

	// Done is terminal for every transition source we use.
	moved, err = repo.Transition(ctx, "evt_1", enums.WebhookEventStatusPending, enums.WebhookEventStatusFailed, nil)
	require.NoError(t, err)
	assert.False(t, moved)

	reclaimed, err := repo.ReclaimFailed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, reclaimed)

	record, err := repo.Find(ctx, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, enums.WebhookEventStatusDone, record.Status)
}

func TestRepositoryTransitionUnknownEvent(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)

	moved, err := repo.Transition(context.Background(), "evt_missing", enums.WebhookEventStatusPending, enums.WebhookEventStatusDone, nil)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestRepositoryFindMissingReturnsNil(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)

	record, err := repo.Find(context.Background(), "evt_missing")
	require.NoError(t, err)
	assert.Nil(t, record)
}
