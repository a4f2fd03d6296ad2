package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/coldpath/coldpath-backend/api"
	"github.com/coldpath/coldpath-backend/enrich"
	"github.com/coldpath/coldpath-backend/logger"
	"github.com/coldpath/coldpath-backend/services"
)

func main() {
	// Load environment variables
	_ = godotenv.Load(".env")

	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	services.InitDB()

	store := enrich.NewGormStore(services.DB)
	hot := buildHotTier(log)
	provider := services.NewFindymailClient()

	coordinator := enrich.NewCoordinator(store, provider, hot, enrich.Config{
		FreshnessWindow: envDays("ENRICH_FRESHNESS_DAYS", 30),
	}, log)
	reporter := enrich.NewReporter(services.DB, envFloat("ENRICH_COST_PER_CREDIT", 0.10))

	go retentionLoop(store, envDays("ENRICH_RETENTION_DAYS", 180), log)

	r := gin.Default()

	// CORS setup for the frontend
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Coldpath-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	api.SetupRoutes(r, coordinator, reporter, log)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Info("starting coldpath backend", "port", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("server exited", "err", err)
	}
}

// buildHotTier prefers Redis when configured so multiple instances share the
// fast tier; otherwise an in-process map does the job.
func buildHotTier(log *logger.Logger) enrich.HotTier {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return enrich.NewMemoryTier(time.Hour)
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	tier := enrich.NewRedisTier(addr, os.Getenv("REDIS_PASSWORD"), db, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tier.Ping(ctx); err != nil {
		log.Warn("redis unreachable, falling back to in-process hot tier", "addr", addr, "err", err)
		return enrich.NewMemoryTier(time.Hour)
	}
	log.Info("redis hot tier connected", "addr", addr)
	return tier
}

// retentionLoop deletes cache records past the cold-storage window. Garbage
// collection only; a missed run never affects correctness.
func retentionLoop(store enrich.Store, retention time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		purged, err := store.PurgeOlderThan(ctx, time.Now().Add(-retention))
		cancel()
		if err != nil {
			log.Warn("retention purge failed", "err", err)
			continue
		}
		if purged > 0 {
			log.Info("retention purge", "deleted", purged)
		}
	}
}

func envDays(key string, def int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	return time.Duration(def) * 24 * time.Hour
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return def
}
