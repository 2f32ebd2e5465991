//go:build integration

package consent_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xs2acms/internal/consent"
	dErrors "xs2acms/pkg/domain-errors"
	"xs2acms/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := consent.NewPostgres(pg.DB)
	ctx := context.Background()

	newConsent := func(externalID string) *consent.Consent {
		return &consent.Consent{
			ID:              uuid.New(),
			ExternalID:      externalID,
			Status:          consent.StatusReceived,
			ValidUntil:      time.Now().AddDate(0, 1, 0).UTC(),
			ExpireDate:      time.Now().AddDate(0, 1, 0).UTC(),
			FrequencyPerDay: 4,
			PsuData:         []consent.PsuData{{PsuID: "psu-1"}},
			ConsentData:     []byte("sealed"),
			CreatedAt:       time.Now().UTC(),
		}
	}

	t.Run("save and find round trip", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		c := newConsent("c-1")
		require.NoError(t, store.Save(ctx, c))

		got, err := store.FindByExternalID(ctx, "c-1")
		require.NoError(t, err)
		assert.Equal(t, consent.StatusReceived, got.Status)
		assert.Equal(t, []consent.PsuData{{PsuID: "psu-1"}}, got.PsuData)
		assert.Equal(t, []byte("sealed"), got.ConsentData)
	})

	t.Run("missing consent is resource unknown", func(t *testing.T) {
		_, err := store.FindByExternalID(ctx, "nope")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeResourceUnknown))
	})

	t.Run("version guard rejects stale writers", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		require.NoError(t, store.Save(ctx, newConsent("c-2")))

		require.NoError(t, store.UpdateStatusIfVersion(ctx, "c-2", 0, consent.StatusValid))

		err := store.UpdateStatusIfVersion(ctx, "c-2", 0, consent.StatusRejected)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeStatusConflict))
	})

	t.Run("finalised consent rejects status writes", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		require.NoError(t, store.Save(ctx, newConsent("c-3")))
		require.NoError(t, store.UpdateStatusIfVersion(ctx, "c-3", 0, consent.StatusRejected))

		err := store.UpdateStatusIfVersion(ctx, "c-3", 1, consent.StatusValid)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeStatusConflict))
	})

	t.Run("stale save cannot revert a terminal status", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		require.NoError(t, store.Save(ctx, newConsent("c-5")))
		require.NoError(t, store.UpdateStatusIfVersion(ctx, "c-5", 0, consent.StatusValid))

		stale, err := store.FindByExternalID(ctx, "c-5")
		require.NoError(t, err)
		require.NoError(t, store.UpdateStatusIfVersion(ctx, "c-5", stale.Version, consent.StatusRevokedByPsu))

		now := time.Now().UTC()
		stale.LastUsedAt = &now
		err = store.Save(ctx, stale)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeStatusConflict))

		got, err := store.FindByExternalID(ctx, "c-5")
		require.NoError(t, err)
		assert.Equal(t, consent.StatusRevokedByPsu, got.Status)
	})

	t.Run("sweep batch leaves finalised rows alone", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		require.NoError(t, store.Save(ctx, newConsent("c-6")))

		page, err := store.FindByStatusIn(ctx, []consent.Status{consent.StatusReceived}, 0, 10)
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.NoError(t, store.UpdateStatusIfVersion(ctx, "c-6", page[0].Version, consent.StatusRevokedByPsu))

		page[0].Status = consent.StatusExpired
		require.NoError(t, store.SaveAll(ctx, page))

		got, err := store.FindByExternalID(ctx, "c-6")
		require.NoError(t, err)
		assert.Equal(t, consent.StatusRevokedByPsu, got.Status)
	})

	t.Run("usage counter never loses increments", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

		for i := 1; i <= 3; i++ {
			count, err := store.IncrementUsage(ctx, "c-4", "/accounts", day)
			require.NoError(t, err)
			assert.Equal(t, i, count)
		}
		count, err := store.IncrementUsage(ctx, "c-4", "/balances", day)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		total, err := store.UsageCount(ctx, "c-4", day)
		require.NoError(t, err)
		assert.Equal(t, 4, total)
	})

	t.Run("status paging", func(t *testing.T) {
		require.NoError(t, pg.TruncateAll(ctx))
		for i := 0; i < 5; i++ {
			require.NoError(t, store.Save(ctx, newConsent(uuid.NewString())))
		}

		count, err := store.CountByStatusIn(ctx, []consent.Status{consent.StatusReceived})
		require.NoError(t, err)
		assert.Equal(t, 5, count)

		page, err := store.FindByStatusIn(ctx, []consent.Status{consent.StatusReceived}, 0, 3)
		require.NoError(t, err)
		assert.Len(t, page, 3)
		page, err = store.FindByStatusIn(ctx, []consent.Status{consent.StatusReceived}, 3, 3)
		require.NoError(t, err)
		assert.Len(t, page, 2)
	})
}
