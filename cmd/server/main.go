package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"xs2acms/internal/authorisation"
	"xs2acms/internal/authorisation/approach"
	authservice "xs2acms/internal/authorisation/service"
	"xs2acms/internal/consent"
	consentservice "xs2acms/internal/consent/service"
	"xs2acms/internal/crypto"
	"xs2acms/internal/events"
	"xs2acms/internal/payment"
	paymentservice "xs2acms/internal/payment/service"
	"xs2acms/internal/platform/config"
	"xs2acms/internal/platform/httpserver"
	"xs2acms/internal/platform/logger"
	"xs2acms/internal/platform/metrics"
	"xs2acms/internal/platform/postgres"
	platformredis "xs2acms/internal/platform/redis"
	"xs2acms/internal/profile"
	"xs2acms/internal/scheduler"
	"xs2acms/internal/tpp"
	tppservice "xs2acms/internal/tpp/service"
	httptransport "xs2acms/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services.
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)
	m := metrics.New()
	prof := profile.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when configured, in-memory for local runs.
	var (
		authStore    authorisation.Store
		consentStore consent.Store
		usageStore   consent.UsageStore
		paymentStore payment.Store
		tppStore     tpp.Store
	)
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		authStore = authorisation.NewPostgres(db)
		pgConsents := consent.NewPostgres(db)
		consentStore, usageStore = pgConsents, pgConsents
		paymentStore = payment.NewPostgres(db)
		tppStore = tpp.NewPostgres(db)
	} else {
		log.Warn("no postgres dsn configured, using in-memory stores")
		memConsents := consent.NewInMemoryStore()
		authStore = authorisation.NewInMemoryStore()
		consentStore, usageStore = memConsents, memConsents
		paymentStore = payment.NewInMemoryStore()
		tppStore = tpp.NewInMemoryStore()
	}

	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return err
		}
		defer kafka.Close()
		publisher = kafka
	} else {
		log.Warn("no kafka brokers configured, status events stay in process")
		publisher = events.NewMemoryPublisher()
	}

	registry := crypto.NewRegistry(
		crypto.NewAesGcmProvider(prof.IDProviderID, 256, 65536),
		crypto.NewAesGcmProvider(prof.DataProviderID, 256, 65536),
	)
	ids, err := crypto.NewIdentifierService(registry, []byte(cfg.RedirectSecret), prof.IDProviderID, prof.DataProviderID)
	if err != nil {
		return err
	}

	resolver := approach.NewResolver(
		approach.NewRedirect(prof, approach.NewLinkBuilder(prof.RedirectURLTemplate, cfg.RedirectSecret), log),
		approach.NewDecoupled(prof, approach.NewMemoryChannel(), log),
		approach.NewEmbedded(prof, approach.NewStaticValidator(), log),
	)

	consents := consentservice.New(consentStore, usageStore, authStore, publisher,
		consentservice.WithLogger(log))
	payments := paymentservice.New(paymentStore, authStore, publisher,
		paymentservice.WithLogger(log))
	engine := authservice.New(authStore, resolver, prof, consents, payments, publisher,
		authservice.WithLogger(log), authservice.WithMetrics(m))
	stopList := tppservice.New(tppStore, tppservice.WithLogger(log))

	var locker scheduler.Locker = scheduler.NewLocalLocker()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = scheduler.NewRedisLocker(redisClient)
	}

	sched := scheduler.New(locker, cfg.Scheduler.LockTTL, []scheduler.Sweep{
		scheduler.NewConsentExpirationSweep(consentStore,
			cfg.Scheduler.ConsentExpiration.Interval, cfg.Scheduler.ConsentExpiration.PageSize, time.Now),
		scheduler.NewUsedNonRecurringSweep(consentStore,
			cfg.Scheduler.UsedNonRecurring.Interval, cfg.Scheduler.UsedNonRecurring.PageSize, time.Now),
		scheduler.NewNotConfirmedConsentSweep(consentStore,
			cfg.Scheduler.NotConfirmedConsent.Interval, cfg.Scheduler.NotConfirmedConsent.PageSize,
			cfg.Scheduler.ConfirmationWindow, time.Now),
		scheduler.NewNotConfirmedPaymentSweep(paymentStore,
			cfg.Scheduler.NotConfirmedPayment.Interval, cfg.Scheduler.NotConfirmedPayment.PageSize,
			cfg.Scheduler.ConfirmationWindow, time.Now),
		scheduler.NewAuthorisationExpirySweep(authStore,
			cfg.Scheduler.AuthorisationExpiry.Interval, cfg.Scheduler.AuthorisationExpiry.PageSize, time.Now),
		scheduler.NewStopListUnblockSweep(tppStore,
			cfg.Scheduler.StopListUnblock.Interval, cfg.Scheduler.StopListUnblock.PageSize, time.Now),
	}, scheduler.WithLogger(log), scheduler.WithMetrics(m))

	handler := httptransport.NewHandler(consents, payments, engine, stopList, ids, m, log)
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(handler))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting consent management server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sched.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
