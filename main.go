package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"restaurant-analytics/ai"
	"restaurant-analytics/analytics"
	"restaurant-analytics/cache"
	"restaurant-analytics/config"
	"restaurant-analytics/database"
	"restaurant-analytics/handlers"
	"restaurant-analytics/metrics"
	"restaurant-analytics/routes"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	store, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolOptions{
		MinConns:    cfg.DBMinConns,
		MaxConns:    cfg.DBMaxConns,
		MaxConnIdle: cfg.DBMaxConnIdle,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	resultCache := cache.New(cache.Options{Enabled: cfg.CacheEnabled, Metrics: m})
	engine := analytics.NewEngine(store, resultCache, m, cfg.Analytics)

	var narrator ai.Narrator
	gemini, err := ai.NewGeminiNarrator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	switch {
	case errors.Is(err, ai.ErrDisabled):
		log.Println("[AI] GEMINI_API_KEY not set, forecast narratives disabled")
	case err != nil:
		log.Printf("⚠️ [AI] %v, forecast narratives disabled", err)
	default:
		defer gemini.Close()
		narrator = gemini
	}

	if len(cfg.Users) == 0 {
		log.Println("⚠️ [AUTH] AUTH_USERS is empty, nobody can log in")
	}

	h := handlers.New(handlers.Deps{
		Engine:    engine,
		Narrator:  narrator,
		DB:        store,
		Users:     cfg.Users,
		JWTSecret: []byte(cfg.JWTSecret),
	})
	app := routes.NewApp(h, m, routes.AppOptions{
		CORSOrigins: cfg.CORSOrigins,
		JWTSecret:   []byte(cfg.JWTSecret),
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
