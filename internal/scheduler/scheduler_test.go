package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xs2acms/internal/consent"
	"xs2acms/internal/tpp"
)

func TestForEachPageZeroRowsSkipsFetch(t *testing.T) {
	fetches := 0
	src := pageSource[int]{
		count: func(context.Context) (int, error) { return 0, nil },
		fetch: func(context.Context, int, int) ([]int, error) {
			fetches++
			return nil, nil
		},
	}
	rows, err := forEachPage(context.Background(), src, 100, func(context.Context, []int) (int, error) {
		t.Fatal("apply must not run on an empty sweep")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.Zero(t, fetches)
}

func TestForEachPagePaginates(t *testing.T) {
	data := make([]int, 101)
	for i := range data {
		data[i] = i
	}
	fetches := 0
	src := pageSource[int]{
		count: func(context.Context) (int, error) { return len(data), nil },
		fetch: func(_ context.Context, offset, limit int) ([]int, error) {
			fetches++
			end := offset + limit
			if end > len(data) {
				end = len(data)
			}
			return data[offset:end], nil
		},
	}
	rows, err := forEachPage(context.Background(), src, 100, func(_ context.Context, page []int) (int, error) {
		return len(page), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 101, rows)
	assert.Equal(t, 2, fetches)
}

func TestForEachPageIsolatesPageFailures(t *testing.T) {
	src := pageSource[int]{
		count: func(context.Context) (int, error) { return 30, nil },
		fetch: func(_ context.Context, offset, _ int) ([]int, error) {
			if offset == 10 {
				return nil, assert.AnError
			}
			return []int{1, 2, 3}, nil
		},
	}
	applied := 0
	rows, err := forEachPage(context.Background(), src, 10, func(_ context.Context, page []int) (int, error) {
		applied++
		return len(page), nil
	})
	require.ErrorIs(t, err, assert.AnError)
	// Pages before and after the failing one still ran.
	assert.Equal(t, 2, applied)
	assert.Equal(t, 6, rows)
}

func TestConsentExpirationSweep(t *testing.T) {
	store := consent.NewInMemoryStore()
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	save := func(id string, validUntil time.Time, status consent.Status, basketBlocked bool) {
		require.NoError(t, store.Save(context.Background(), &consent.Consent{
			ExternalID:           id,
			Status:               status,
			ValidUntil:           validUntil,
			SigningBasketBlocked: basketBlocked,
			CreatedAt:            now.AddDate(0, -1, 0),
		}))
	}
	save("expired", now.AddDate(0, 0, -1), consent.StatusValid, false)
	save("valid-until-today", now, consent.StatusValid, false)
	save("future", now.AddDate(0, 0, 30), consent.StatusValid, false)
	save("basket-blocked", now.AddDate(0, 0, -1), consent.StatusValid, true)
	save("already-rejected", now.AddDate(0, 0, -1), consent.StatusRejected, false)

	sweep := NewConsentExpirationSweep(store, time.Minute, 100, func() time.Time { return now })
	rows, err := sweep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	assertStatus := func(id string, want consent.Status) {
		c, err := store.FindByExternalID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, c.Status, id)
	}
	assertStatus("expired", consent.StatusExpired)
	// Valid until today means usable through today.
	assertStatus("valid-until-today", consent.StatusValid)
	assertStatus("future", consent.StatusValid)
	assertStatus("basket-blocked", consent.StatusValid)
	assertStatus("already-rejected", consent.StatusRejected)

	// A second run finds nothing new.
	rows, err = sweep.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestUsedNonRecurringSweep(t *testing.T) {
	store := consent.NewInMemoryStore()
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	usedYesterday := &consent.Consent{
		ExternalID: "one-off-used",
		Status:     consent.StatusValid,
		ValidUntil: now.AddDate(0, 1, 0),
		LastUsedAt: &yesterday,
	}
	usedToday := &consent.Consent{
		ExternalID: "one-off-fresh",
		Status:     consent.StatusValid,
		ValidUntil: now.AddDate(0, 1, 0),
		LastUsedAt: &now,
	}
	recurring := &consent.Consent{
		ExternalID:         "recurring",
		Status:             consent.StatusValid,
		RecurringIndicator: true,
		ValidUntil:         now.AddDate(0, 1, 0),
		LastUsedAt:         &yesterday,
	}
	for _, c := range []*consent.Consent{usedYesterday, usedToday, recurring} {
		require.NoError(t, store.Save(context.Background(), c))
	}

	sweep := NewUsedNonRecurringSweep(store, time.Minute, 100, func() time.Time { return now })
	rows, err := sweep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	c, err := store.FindByExternalID(context.Background(), "one-off-used")
	require.NoError(t, err)
	assert.Equal(t, consent.StatusExpired, c.Status)
	c, err = store.FindByExternalID(context.Background(), "recurring")
	require.NoError(t, err)
	assert.Equal(t, consent.StatusValid, c.Status)
}

func TestStopListUnblockSweep(t *testing.T) {
	store := tpp.NewInMemoryStore()
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	entries := []*tpp.StopListEntry{
		{ID: "a", TppAuthorisationNumber: "TPP-A", Status: tpp.StatusBlocked, BlockingExpiresAt: &past},
		{ID: "b", TppAuthorisationNumber: "TPP-B", Status: tpp.StatusBlocked, BlockingExpiresAt: &future},
		{ID: "c", TppAuthorisationNumber: "TPP-C", Status: tpp.StatusBlocked},
	}
	for _, e := range entries {
		require.NoError(t, store.Save(context.Background(), e))
	}

	sweep := NewStopListUnblockSweep(store, time.Minute, 100, func() time.Time { return now })
	rows, err := sweep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	a, err := store.FindByAuthorisationNumber(context.Background(), "TPP-A", "")
	require.NoError(t, err)
	assert.Equal(t, tpp.StatusEnabled, a.Status)
	assert.Nil(t, a.BlockingExpiresAt)

	b, err := store.FindByAuthorisationNumber(context.Background(), "TPP-B", "")
	require.NoError(t, err)
	assert.Equal(t, tpp.StatusBlocked, b.Status)

	c, err := store.FindByAuthorisationNumber(context.Background(), "TPP-C", "")
	require.NoError(t, err)
	assert.Equal(t, tpp.StatusBlocked, c.Status)
}

func TestSchedulerSkipsWhenLockHeld(t *testing.T) {
	locker := NewLocalLocker()
	_, err := locker.Acquire(context.Background(), "consent-expiration", time.Minute)
	require.NoError(t, err)

	runs := 0
	sweep := Sweep{
		Name:     "consent-expiration",
		Interval: time.Minute,
		Run: func(context.Context) (int, error) {
			runs++
			return 0, nil
		},
	}
	s := New(locker, time.Minute, []Sweep{sweep})
	rows, err := s.Trigger(context.Background(), "consent-expiration")
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.Zero(t, runs)

	require.NoError(t, locker.Release(context.Background(), "consent-expiration"))
	_, err = s.Trigger(context.Background(), "consent-expiration")
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
}

func TestSchedulerTriggerUnknownSweep(t *testing.T) {
	s := New(NewLocalLocker(), time.Minute, nil)
	rows, err := s.Trigger(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, rows)
}
