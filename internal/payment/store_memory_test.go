package payment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAllLeavesFinalisedRowsAlone(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	p := &Payment{
		ID:         uuid.New(),
		ExternalID: uuid.NewString(),
		Status:     StatusReceived,
		PsuIDs:     []string{"psu-1"},
	}
	require.NoError(t, store.Save(ctx, p))

	page, err := store.FindByStatusIn(ctx, []TransactionStatus{StatusReceived}, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)

	// Payment accepted through the CAS path while the sweep held the page.
	require.NoError(t, store.UpdateStatusIfVersion(ctx, p.ExternalID, page[0].Version, StatusAccepted))

	page[0].Status = StatusRejected
	require.NoError(t, store.SaveAll(ctx, page))

	got, err := store.FindByExternalID(ctx, p.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)
}
