package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dinnerparty-backend/internal/config"
	"dinnerparty-backend/internal/handlers"
	"dinnerparty-backend/internal/middleware"
	"dinnerparty-backend/internal/repository"
	"dinnerparty-backend/internal/repository/migrations"
	"dinnerparty-backend/internal/services"
	"dinnerparty-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// changeFeedRetry is the pause before re-listening after the feed drops
const changeFeedRetry = 5 * time.Second

func Run() {
	defaultConfig := os.Getenv("DINNERPARTY_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}
	configPath := flag.String("config", defaultConfig, "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.MigrateOnBoot {
		if err := migrations.Up(cfg.Database.URL()); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	// Connect to database
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	videos, err := storage.NewVideoStore(ctx, storage.Options{
		Region:        cfg.AWS.Region,
		Bucket:        cfg.AWS.VideoBucket,
		AccessKey:     cfg.AWS.AccessKey,
		SecretKey:     cfg.AWS.SecretKey,
		Endpoint:      cfg.AWS.Endpoint,
		PublicBaseURL: cfg.AWS.PublicBaseURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create video store")
	}

	// Initialize repositories
	stores := services.Stores{
		Users:    repository.NewUserRepository(db),
		Groups:   repository.NewGroupRepository(db),
		Members:  repository.NewMemberRepository(db),
		Parties:  repository.NewPartyRepository(db),
		Requests: repository.NewRequestRepository(db),
		Videos:   videos,
	}
	rules := services.Rules{
		MaxGroupSize:      cfg.Matching.MaxGroupSize,
		ReadyThreshold:    cfg.Matching.ReadyThreshold,
		JoinCodeAttempts:  cfg.Matching.JoinCodeAttempts,
		StaleAfter:        cfg.Matching.StaleAfter,
		VideoUploadExpiry: cfg.Matching.VideoUploadExpiry,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.NewMetrics(registry)

	// Initialize services
	userService := services.NewUserService(stores.Users, cfg.Auth.JWTSecret, cfg.Auth.Audience)
	matchingService := services.NewMatchingService(stores, metrics)
	groupService := services.NewGroupService(stores, rules, metrics)
	viewService := services.NewViewService(stores, rules, matchingService)
	hub := services.NewChangeHub()

	sweeper := services.NewSweeper(stores.Groups, matchingService, rules, metrics)
	if err := sweeper.Start(cfg.Matching.SweepSchedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sweeper")
	}
	defer sweeper.Stop()

	go runChangeFeed(ctx, repository.NewChangeFeed(db), hub)

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	limiter.StartCleanup(time.Minute, ctx.Done())

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService, viewService)
	groupHandler := handlers.NewGroupHandler(groupService, viewService)
	pairHandler := handlers.NewPairHandler(matchingService, viewService)
	wsHandler := handlers.NewWebSocketHandler(hub, userService, viewService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket authenticates with the token query parameter
		r.Get("/ws", wsHandler.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))
			r.Use(limiter.Handler)

			r.Post("/users", userHandler.CreateProfile)
			r.Get("/users/me", userHandler.GetMe)
			r.Patch("/users/me", userHandler.UpdateMe)
			r.Get("/users/me/group", userHandler.GetMyGroup)

			r.Post("/groups", groupHandler.CreateGroup)
			r.Post("/groups/join", groupHandler.JoinGroup)
			r.Get("/parties", groupHandler.GetActiveDinnerParties)
			r.Post("/requests/{id}/accept", pairHandler.AcceptPartyRequest)

			r.Route("/groups/{id}", func(r chi.Router) {
				r.Post("/lock", groupHandler.LockGroup)
				r.Put("/profile", groupHandler.UpdateGroupProfile)
				r.Post("/videos/upload", groupHandler.PresignVideoUpload)
				r.Delete("/members/me", groupHandler.LeaveGroup)
				r.Get("/members", groupHandler.GetGroupMembers)

				r.Post("/party", groupHandler.CreateDinnerParty)
				r.Get("/party", groupHandler.GetGroupDinnerParty)
				r.Delete("/party", groupHandler.DeleteDinnerParty)

				r.Post("/requests", pairHandler.CreatePartyRequest)
				r.Get("/requests", pairHandler.GetPartyRequests)
				r.Delete("/requests", pairHandler.ClearPartyRequests)
				r.Post("/cancel", pairHandler.CancelAttendance)
				r.Get("/host", pairHandler.GetHostGroupInfo)
				r.Get("/attendee", pairHandler.GetAttendeeGroupInfo)
			})
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// runChangeFeed fans row changes out to WebSocket clients, re-listening
// after connection failures until ctx is done
func runChangeFeed(ctx context.Context, feed *repository.ChangeFeed, hub *services.ChangeHub) {
	for {
		err := feed.Listen(ctx, hub.Publish)
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Dur("retry_in", changeFeedRetry).Msg("Change feed stopped")

		select {
		case <-ctx.Done():
			return
		case <-time.After(changeFeedRetry):
		}
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
