package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"vigila/auth"
	"vigila/booking"
	"vigila/cache"
	"vigila/config"
	"vigila/db"
	"vigila/feed"
	"vigila/guard"
	"vigila/guests"
	"vigila/logging"
	"vigila/metrics"
	"vigila/middleware"
	"vigila/ratelim"
	"vigila/rdx"
	"vigila/resource"
	"vigila/routes"
	"vigila/sales"
	"vigila/services"
	"vigila/session"
	"vigila/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("server stopped cleanly")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	conn, err := rdx.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer conn.Close()

	manager := session.NewManager([]byte(cfg.JWTSecret), cfg.SessionTTL, rdx.NewRegistry(conn, logger), logger)
	go func() {
		if err := manager.Listen(ctx); err != nil {
			logger.Error().Err(err).Msg("session end listener stopped")
		}
	}()
	go manager.RunReaper(ctx, cfg.SessionSweep)

	store, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("mongo disconnect failed")
		}
	}()
	if err := store.CreateIndexes(ctx); err != nil {
		logger.Warn().Err(err).Msg("index creation failed")
	}

	be, err := openBackends(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer be.close()

	spaces := workspace.NewRegistry(workspace.Gateways{
		Bookings: be.bookings,
		Services: be.services,
		Sales:    be.sales,
		Guests:   be.guests,
	}, manager, logger,
		workspace.WithRetention(cfg.SessionTTL),
		workspace.WithStoreOptions(cache.WithMaxAge(cfg.CacheMaxAge), cache.WithObserver(m)),
	)
	defer spaces.Close()

	hub := feed.NewHub(manager, allowOrigins(cfg.CORSOrigins), logger)
	g := guard.New(guard.DefaultTable(), manager, guard.WithObserver(m), guard.WithLogger(logger))

	bookings := booking.NewHandler(spaces, be.bookings, be.services, hub, []byte("voucher:"+cfg.JWTSecret), logger)
	changes := rdx.NewChanges(conn, logger)
	bookings.Relay = changes
	go func() {
		if err := changes.Run(ctx, bookings.Apply); err != nil {
			logger.Error().Err(err).Msg("booking change listener stopped")
		}
	}()

	router := httprouter.New()
	routes.RoutesWrapper(router, routes.Deps{
		Guard:    g,
		Accessor: manager,
		Spaces:   spaces,
		Auth:     auth.NewHandler(auth.NewMongoUsers(store.UserCollection), manager, logger, cfg.CookieSecure),
		Bookings: bookings,
		Services: services.NewHandler(spaces, be.services, hub, logger),
		Sales:    sales.NewHandler(spaces, hub, logger),
		Guests:   guests.NewHandler(spaces, be.guests, hub, logger),
		Control:  &resource.Control{Spaces: spaces, Feed: hub},
		Hub:      hub,
		Metrics:  m.Handler(),
	}, ratelim.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, 10*time.Minute))

	// apply middleware: logging → security headers → session token → CORS → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)
	handler := middleware.Logging(logger, m)(middleware.SecurityHeaders(middleware.Session(corsHandler)))

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	server.RegisterOnShutdown(func() {
		logger.Info().Msg("closing feed subscribers")
		hub.Stop()
	})

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("backend", cfg.Backend).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutdown signal received; shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// allowOrigins accepts websocket upgrades from the CORS origins only.
func allowOrigins(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
	}
}
