package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"pulse-insights/cache"
	"pulse-insights/config"
	"pulse-insights/database"
	factorstore "pulse-insights/database/factors"
	"pulse-insights/database/insights"
	"pulse-insights/database/sources"
	"pulse-insights/factors"
	"pulse-insights/settings"
)

// App represents the main application
type App struct {
	config        *config.Config
	db            *database.Database
	redis         *cache.RedisClient
	settings      *settings.SettingsCache
	metrics       *Metrics
	metricsServer *MetricsServer
	runner        *Runner
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config:  cfg,
		metrics: NewMetrics(),
		db:      nil, // Will be initialized in Start()
		redis:   nil, // Will be initialized in Start()
	}
}

// Start starts the application
func (a *App) Start() error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database Connection
	fmt.Println("🗄️  Connecting to database...")

	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	// 2. Redis Connection
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)

	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Publishing and cooldowns disabled.")
	} else {
		a.redis = redisClient
	}

	// 3. Schema
	if err := database.NewSchemaManager(a.db).InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 4. Pipeline
	a.runner = a.buildRunner()

	// 5. Metrics listener
	if a.config.MetricsAddr != "" {
		a.metricsServer = NewMetricsServer(a.config.MetricsAddr, a.metrics)
		go a.metricsServer.Start()
	}

	// 6. Single cycle for an external scheduler
	if a.config.Analysis.RunOnce {
		err := a.runCycle(ctx)
		a.closeConnections()
		return err
	}

	// 7. Service mode
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runLoop(ctx)
	}()

	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// buildRunner wires repositories, caches and engine stages
func (a *App) buildRunner() *Runner {
	gdb := a.db.DB()
	store := factorstore.NewRepository(gdb)
	insightRepo := insights.NewRepository(gdb)

	ttl := time.Duration(a.config.Analysis.SettingsCacheTTLSeconds) * time.Second
	a.settings = settings.NewSettingsCache(insightRepo, ttl)

	deps := PipelineDeps{
		Store:      store,
		Extractor:  factors.NewExtractor(sources.NewRepository(gdb)),
		Settings:   a.settings,
		Insights:   insightRepo,
		Cooldown:   cache.NewCooldownStore(a.redis),
		Metrics:    a.metrics,
		WindowDays: a.config.Analysis.BaselineWindowDays,
	}
	if a.redis != nil {
		deps.Sink = cache.NewInsightPublisher(a.redis)
	}

	return NewRunner(
		store,
		NewPipeline(deps),
		a.metrics,
		a.config.Analysis.Concurrency,
		a.config.Analysis.UserTimeout(),
		a.config.Analysis.ActiveUserDays,
	)
}

// runCycle analyses the configured date
func (a *App) runCycle(ctx context.Context) error {
	date, err := a.config.Analysis.TargetDate(time.Now())
	if err != nil {
		return err
	}

	_, err = a.runner.RunCycle(ctx, date)
	return err
}

// runLoop runs a cycle immediately and then on every tick until stopped
func (a *App) runLoop(ctx context.Context) {
	interval := time.Duration(a.config.Analysis.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	log.Printf("⏰ Analysis loop started (every %s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial run
	if err := a.runCycle(ctx); err != nil {
		log.Printf("⚠️  Analysis cycle failed: %v", err)
	}

	for {
		select {
		case <-ticker.C:
			if err := a.runCycle(ctx); err != nil {
				log.Printf("⚠️  Analysis cycle failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏰ Analysis loop stopped")
			return
		}
	}
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	// Setup signal handling
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Cancel context; an in-flight cycle truncates its history scans and returns
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		if a.metricsServer != nil {
			fmt.Println("📈 Stopping metrics listener...")
			if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error stopping metrics listener: %v", err)
			}
		}

		a.closeConnections()
		close(shutdownComplete)
	}()

	// Wait for shutdown to complete or timeout
	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}

// closeConnections closes the database and Redis clients
func (a *App) closeConnections() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		} else {
			fmt.Println("✅ Database connection closed")
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("Error closing redis: %v", err)
		} else {
			fmt.Println("✅ Redis connection closed")
		}
	}
}
