package scheduler

import (
	"context"
	"time"

	"xs2acms/internal/authorisation"
	"xs2acms/internal/consent"
	"xs2acms/internal/payment"
	"xs2acms/internal/tpp"
)

// Sweep is one periodic expiration job. Run returns how many rows it
// force-transitioned.
type Sweep struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// NewConsentExpirationSweep expires consents whose validity date passed.
// Consents parked in a signing basket are skipped until the basket releases
// them.
func NewConsentExpirationSweep(store consent.Store, interval time.Duration, pageSize int, now func() time.Time) Sweep {
	statuses := []consent.Status{consent.StatusReceived, consent.StatusPartiallyAuthorised, consent.StatusValid}
	return Sweep{
		Name:     "consent-expiration",
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			return sweepConsents(ctx, store, statuses, pageSize, consent.StatusExpired, func(c *consent.Consent) bool {
				return !c.SigningBasketBlocked && c.ExpiredByDate(now())
			})
		},
	}
}

// NewUsedNonRecurringSweep expires one-off consents that were used on a
// previous day.
func NewUsedNonRecurringSweep(store consent.Store, interval time.Duration, pageSize int, now func() time.Time) Sweep {
	statuses := []consent.Status{consent.StatusValid}
	return Sweep{
		Name:     "used-non-recurring",
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			return sweepConsents(ctx, store, statuses, pageSize, consent.StatusExpired, func(c *consent.Consent) bool {
				return !c.SigningBasketBlocked && c.UsedNonRecurringExpired(now())
			})
		},
	}
}

// NewNotConfirmedConsentSweep rejects consents that sat unconfirmed past the
// confirmation window.
func NewNotConfirmedConsentSweep(store consent.Store, interval time.Duration, pageSize int, window time.Duration, now func() time.Time) Sweep {
	statuses := []consent.Status{consent.StatusReceived, consent.StatusPartiallyAuthorised}
	return Sweep{
		Name:     "not-confirmed-consent",
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			return sweepConsents(ctx, store, statuses, pageSize, consent.StatusRejected, func(c *consent.Consent) bool {
				return c.ConfirmationExpired(now(), window)
			})
		},
	}
}

// NewNotConfirmedPaymentSweep rejects payments that sat unconfirmed past the
// confirmation window.
func NewNotConfirmedPaymentSweep(store payment.Store, interval time.Duration, pageSize int, window time.Duration, now func() time.Time) Sweep {
	statuses := []payment.TransactionStatus{payment.StatusReceived, payment.StatusPartiallyAuthorised}
	return Sweep{
		Name:     "not-confirmed-payment",
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			return forEachPage(ctx, pageSource[*payment.Payment]{
				count: func(ctx context.Context) (int, error) { return store.CountByStatusIn(ctx, statuses) },
				fetch: func(ctx context.Context, offset, limit int) ([]*payment.Payment, error) {
					return store.FindByStatusIn(ctx, statuses, offset, limit)
				},
			}, pageSize, func(ctx context.Context, page []*payment.Payment) (int, error) {
				var expired []*payment.Payment
				for _, p := range page {
					if p.ConfirmationExpired(now(), window) {
						p.Status = payment.StatusRejected
						expired = append(expired, p)
					}
				}
				if len(expired) == 0 {
					return 0, nil
				}
				return len(expired), store.SaveAll(ctx, expired)
			})
		},
	}
}

// NewAuthorisationExpirySweep fails authorisations that outlived their
// overall or redirect-URL deadline without reaching a terminal state.
func NewAuthorisationExpirySweep(store authorisation.Store, interval time.Duration, pageSize int, now func() time.Time) Sweep {
	statuses := []authorisation.ScaStatus{
		authorisation.ScaStatusReceived,
		authorisation.ScaStatusPsuIdentified,
		authorisation.ScaStatusPsuAuthenticated,
		authorisation.ScaStatusScaMethodSelected,
		authorisation.ScaStatusStarted,
	}
	return Sweep{
		Name:     "authorisation-expiry",
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			return forEachPage(ctx, pageSource[*authorisation.Authorisation]{
				count: func(ctx context.Context) (int, error) { return store.CountByStatusIn(ctx, statuses) },
				fetch: func(ctx context.Context, offset, limit int) ([]*authorisation.Authorisation, error) {
					return store.FindByStatusIn(ctx, statuses, offset, limit)
				},
			}, pageSize, func(ctx context.Context, page []*authorisation.Authorisation) (int, error) {
				t := now()
				var expired []*authorisation.Authorisation
				for _, a := range page {
					if a.Expired(t) || a.RedirectExpired(t) {
						a.ScaStatus = authorisation.ScaStatusFailed
						expired = append(expired, a)
					}
				}
				if len(expired) == 0 {
					return 0, nil
				}
				return len(expired), store.SaveAll(ctx, expired)
			})
		},
	}
}

// NewStopListUnblockSweep re-enables TPPs whose timed block lapsed. The
// request path already treats a lapsed block as inactive; this sweep only
// tidies the stored rows.
func NewStopListUnblockSweep(store tpp.Store, interval time.Duration, pageSize int, now func() time.Time) Sweep {
	return Sweep{
		Name:     "stop-list-unblock",
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			return forEachPage(ctx, pageSource[*tpp.StopListEntry]{
				count: func(ctx context.Context) (int, error) { return store.CountBlockedWithExpiry(ctx) },
				fetch: func(ctx context.Context, offset, limit int) ([]*tpp.StopListEntry, error) {
					return store.FindBlockedWithExpiry(ctx, offset, limit)
				},
			}, pageSize, func(ctx context.Context, page []*tpp.StopListEntry) (int, error) {
				t := now()
				var lapsed []*tpp.StopListEntry
				for _, e := range page {
					if e.BlockExpired(t) {
						e.Status = tpp.StatusEnabled
						e.BlockingExpiresAt = nil
						e.UpdatedAt = t
						lapsed = append(lapsed, e)
					}
				}
				if len(lapsed) == 0 {
					return 0, nil
				}
				return len(lapsed), store.SaveAll(ctx, lapsed)
			})
		},
	}
}

func sweepConsents(ctx context.Context, store consent.Store, statuses []consent.Status, pageSize int, target consent.Status, match func(*consent.Consent) bool) (int, error) {
	return forEachPage(ctx, pageSource[*consent.Consent]{
		count: func(ctx context.Context) (int, error) { return store.CountByStatusIn(ctx, statuses) },
		fetch: func(ctx context.Context, offset, limit int) ([]*consent.Consent, error) {
			return store.FindByStatusIn(ctx, statuses, offset, limit)
		},
	}, pageSize, func(ctx context.Context, page []*consent.Consent) (int, error) {
		var matched []*consent.Consent
		for _, c := range page {
			if match(c) {
				c.Status = target
				matched = append(matched, c)
			}
		}
		if len(matched) == 0 {
			return 0, nil
		}
		return len(matched), store.SaveAll(ctx, matched)
	})
}
