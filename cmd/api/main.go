package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ems-dispatch-api/internal/cache"
	"ems-dispatch-api/internal/config"
	"ems-dispatch-api/internal/feed"
	"ems-dispatch-api/internal/handler"
	"ems-dispatch-api/internal/middleware"
	"ems-dispatch-api/internal/repository"
	"ems-dispatch-api/internal/router"
	"ems-dispatch-api/internal/service"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting EMS Dispatch API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize SQLite call archive
	var archive repository.CallArchive
	sqliteArchive, err := repository.NewSQLiteCallArchive(cfg.ArchiveDB.Path)
	if err != nil {
		log.Printf("Warning: call archive unavailable: %v", err)
	} else {
		defer sqliteArchive.Close()
		archive = sqliteArchive
		log.Println("SQLite call archive initialized")
	}

	// Initialize MySQL connection for career stats (optional)
	var mysqlDB *sql.DB
	var careerRepo repository.CareerRepository

	mysqlDB, err = sql.Open("mysql", cfg.Database.DSN())
	if err != nil {
		log.Printf("Warning: MySQL connection failed: %v", err)
	} else {
		mysqlDB.SetMaxOpenConns(10)
		mysqlDB.SetMaxIdleConns(5)
		mysqlDB.SetConnMaxLifetime(5 * time.Minute)

		if err := mysqlDB.Ping(); err != nil {
			log.Printf("Warning: MySQL ping failed, career stats disabled: %v", err)
			mysqlDB.Close()
			mysqlDB = nil
		} else {
			careerRepo, err = repository.NewMySQLCareerRepository(mysqlDB)
			if err != nil {
				log.Printf("Warning: career repository init failed: %v", err)
				careerRepo = nil
			} else {
				log.Println("MySQL career repository initialized")
			}
		}
	}
	if mysqlDB != nil {
		defer mysqlDB.Close()
	}

	// Initialize Redis client (optional)
	redisAddr := cfg.Cache.RedisAddress()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v", err)
		redisClient = nil
	} else {
		log.Println("Redis client initialized")
	}
	cancel()

	// Stat buffer for write-behind career persistence
	var statBuffer cache.StatBuffer
	if careerRepo != nil {
		flushFunc := cache.FlushFunc(careerRepo.ApplyDeltas)
		if redisClient != nil {
			redisBuffer, err := cache.NewRedisStatBuffer(cache.RedisBufferConfig{
				Addr:          redisAddr,
				Password:      cfg.Cache.RedisPassword,
				DB:            cfg.Cache.RedisDB,
				FlushInterval: cfg.Cache.FlushInterval,
			}, flushFunc)
			if err != nil {
				log.Printf("Warning: Redis stat buffer initialization failed: %v", err)
			} else {
				statBuffer = redisBuffer
				log.Println("Redis stat buffer initialized")
			}
		}
		if statBuffer == nil {
			statBuffer = cache.NewMemoryStatBuffer(cfg.Cache.FlushInterval, flushFunc)
			log.Println("In-memory stat buffer initialized")
		}
	}

	// Live dispatch feed
	hub := feed.NewHub()

	// Initialize services
	rosterService := service.NewRosterService(careerRepo, statBuffer, hub)

	dispatchService := service.NewDispatchService(rosterService, archive, hub, service.DispatchConfig{
		CallExpiry:       cfg.Dispatch.CallExpiry,
		CallRetention:    cfg.Dispatch.CallRetention,
		SweepInterval:    cfg.Dispatch.SweepInterval,
		ArchiveRetention: cfg.ArchiveDB.Retention,
		MaxDescription:   cfg.Dispatch.MaxDescription,
	})
	dispatchService.Start()

	payrollService := service.NewPayrollService(rosterService, hub, service.PayrollConfig{
		Interval: cfg.Dispatch.SalaryInterval,
	})
	payrollService.Start()

	var tokenService *service.TokenService
	if redisClient != nil {
		tokenService = service.NewTokenService(redisClient)
	}

	// Initialize handlers
	healthHandler := handler.New(cfg.App.Version)
	sessionHandler := handler.NewSessionHandler(rosterService, tokenService)
	rosterHandler := handler.NewRosterHandler(rosterService)
	callHandler := handler.NewCallHandler(dispatchService)
	adminHandler := handler.NewAdminHandler(rosterService, dispatchService, payrollService, archive, statBuffer, hub, cfg.App.LoginKey)

	// Create auth middleware with injected dependencies
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		TokenService: tokenService,
		APIKeys:      splitKeys(os.Getenv("API_KEYS")),
	})

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		SessionHandler: sessionHandler,
		RosterHandler:  rosterHandler,
		CallHandler:    callHandler,
		AdminHandler:   adminHandler,
		FeedHandler:    hub.ServeWS,
		AuthMiddleware: authMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop background schedulers first
	payrollService.Stop()
	dispatchService.Stop()

	// Close stat buffer (flushes pending increments)
	if statBuffer != nil {
		log.Println("Closing stat buffer...")
		if err := statBuffer.Close(); err != nil {
			log.Printf("Stat buffer close error: %v", err)
		}
	}

	hub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

func splitKeys(raw string) []string {
	if raw == "" {
		return nil
	}
	keys := strings.Split(raw, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}
