package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"queue-ticketing-backend/config"
	"queue-ticketing-backend/internal/api"
	"queue-ticketing-backend/internal/cache"
	"queue-ticketing-backend/internal/db"
	"queue-ticketing-backend/internal/engine"
	"queue-ticketing-backend/internal/geo"
	"queue-ticketing-backend/internal/notification"
	"queue-ticketing-backend/internal/predict"
	"queue-ticketing-backend/internal/rank"
	"queue-ticketing-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "queued ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Check for VAPID keys
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	// The throttle/dedup store and the real-time channel share one Redis
	// connection. Without a URL both degrade to in-process equivalents,
	// which is fine for a single instance.
	var (
		kv        cache.Store
		publisher notification.Publisher
	)
	if cfg.Redis.URL != "" {
		redisStore, err := cache.NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		kv = redisStore
		publisher = notification.NewRedisPublisher(redisStore.Client())
		logger.Println("redis connected")
	} else {
		logger.Println("no redis url configured; using in-process cache, channel events disabled")
		kv = cache.NewMemory()
		publisher = notification.NopPublisher{}
	}

	// Initialize the notification worker pool
	dispatcher := notification.NewDispatcher(cfg.WorkerPool.Size, appStore, &webpushOptions, publisher)
	dispatcher.Start(ctx)

	eng := engine.New(appStore, predict.NoModel{}, geo.Haversine{}, dispatcher, kv, engine.Config{
		CallTimeout:           time.Duration(cfg.Engine.CallTimeoutMinutes) * time.Minute,
		KioskExpiry:           time.Duration(cfg.Engine.KioskExpiryHours) * time.Hour,
		KioskHourlyLimit:      cfg.Engine.KioskHourlyLimit,
		ProximityKM:           cfg.Engine.ProximityKM,
		PresenceProximityKM:   cfg.Engine.PresenceProximityKM,
		DefaultServiceMinutes: cfg.Engine.DefaultServiceMinutes,
	}, nil)

	searchSvc := rank.NewService(appStore, eng, geo.Haversine{}, predict.HeuristicScorer{}, nil)

	// Run the expiry sweeper in the background
	go eng.RunSweeper(ctx, cfg.Sweep.Interval)

	// Initialize router
	router := api.NewRouter(appStore, eng, searchSvc, &webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
