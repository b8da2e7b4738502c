// README: Entry point; loads config, wires services, starts the HTTP server
// and the feed-driven background workers.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"glide/internal/config"
	httptransport "glide/internal/http"
	"glide/internal/http/handlers"
	"glide/internal/infra"
	"glide/internal/logging"
	"glide/internal/maps"
	"glide/internal/modules/dispatch"
	"glide/internal/modules/location"
	"glide/internal/modules/pricing"
	"glide/internal/modules/reassign"
	"glide/internal/modules/ride"
	"glide/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	// Firebase is optional: without a project id the API falls back to
	// header-based identity and push notifications are disabled.
	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
	} else {
		logger.Warn("firebase not configured; using header-based identity")
	}

	var routeProvider ride.RouteProvider
	var geocoder handlers.Geocoder
	if cfg.Maps.APIKey != "" {
		routeService, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		routeProvider = routeService
		geocodeService, err := maps.NewGeocodeService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		geocoder = geocodeService
	} else {
		logger.Warn("maps not configured; using straight-line route estimates")
	}

	pricingStore := pricing.NewStore(dbPool)
	pricingSvc := pricing.NewService(pricingStore)

	feed := ride.NewRedisFeed(redisClient)

	rideStore := ride.NewStore(dbPool)
	rideSvc := ride.NewService(rideStore, pricingSvc, routeProvider, feed, logger)
	rideSvc.SetPendingExpiry(cfg.Ride.PendingExpiry)

	locationStore := location.NewStore(dbPool, redisClient)
	locationSvc := location.NewService(locationStore, cfg.Dispatch.MinMoveM, logger)

	dispatchSvc := dispatch.NewService(
		rideStore,
		locationSvc,
		dispatch.NewProfileStore(dbPool),
		dispatch.Config{
			RideRadiusKm:   cfg.Dispatch.RideRadiusKm,
			DriverRadiusKm: cfg.Dispatch.DriverRadiusKm,
		},
		logger,
	)

	coordinator := reassign.NewCoordinator(feed, rideSvc, logger)
	go runWorker(ctx, logger, "reassign coordinator", coordinator.Run)

	refresher := dispatch.NewRefresher(feed, cfg.Dispatch.RefreshDebounce, func(c ride.Change) {
		dispatchSvc.NoteOpenSetChange()
		logger.Debug("open-ride set changed", "ride_id", c.RideID, "status", c.Status)
	}, logger)
	go runWorker(ctx, logger, "dispatch refresher", refresher.Run)

	if cfg.Firebase.ProjectID != "" {
		msgClient, err := infra.NewMessagingClient(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Fatalf("firebase messaging init: %v", err)
		}
		bridge := notify.NewBridge(feed, notify.NewTokenStore(dbPool), msgClient, logger)
		go runWorker(ctx, logger, "push bridge", bridge.Run)
	}

	go rideSvc.RunExpireTicker(ctx)

	handler := httptransport.NewRouter(rideSvc, dispatchSvc, locationSvc, geocoder, verifier, logger)
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// runWorker keeps a feed-driven worker alive across transient broker errors.
func runWorker(ctx context.Context, logger *slog.Logger, name string, run func(context.Context) error) {
	for {
		err := run(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Error("worker exited; restarting", "worker", name, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
