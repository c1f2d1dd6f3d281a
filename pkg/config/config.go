package config

import (
	"log"
	"os"
	"slices"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	AppEnv       string
	IsStaging    bool
	IsProduction bool

	JWTSecret   string
	Port        string
	DatabaseDSN string

	// chat session tunables
	ChatTTLMinutes       int
	SweepIntervalSeconds int
	CountdownSeconds     int

	// abuse controls and caches
	RateLimitWindowSeconds int
	RateLimitCapacity      int
	DuplicateWindowSeconds int
	ScanCacheTTLSeconds    int
)

// loadAppEnv loads .env only outside production; production relies on the
// host environment exclusively. A missing .env is fine (tests, CI).
func loadAppEnv() {
	AppEnv = os.Getenv("APP_ENV")
	if AppEnv == "production" {
		return
	}
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] no .env file loaded: %v", err)
	}
}

func init() {
	loadAppEnv()

	AppEnv = os.Getenv("APP_ENV")
	if AppEnv == "" {
		AppEnv = "staging"
	}
	if !slices.Contains([]string{"staging", "production"}, AppEnv) {
		log.Fatal("environment variable APP_ENV must be 'staging' or 'production'")
	}
	IsStaging = AppEnv == "staging"
	IsProduction = AppEnv == "production"

	JWTSecret = os.Getenv("JWT_SECRET_KEY")
	DatabaseDSN = os.Getenv("DATABASE_DSN")
	Port = os.Getenv("PORT")
	if Port == "" {
		Port = "5000"
	}

	ChatTTLMinutes = atoiOr(os.Getenv("CHAT_TTL_MINUTES"), 30)
	SweepIntervalSeconds = atoiOr(os.Getenv("CHAT_SWEEP_INTERVAL_SECONDS"), 60)
	CountdownSeconds = atoiOr(os.Getenv("CHAT_COUNTDOWN_SECONDS"), 60)

	RateLimitWindowSeconds = atoiOr(os.Getenv("RATE_LIMIT_WINDOW_SECONDS"), 10)
	RateLimitCapacity = atoiOr(os.Getenv("RATE_LIMIT_CAPACITY"), 5)
	DuplicateWindowSeconds = atoiOr(os.Getenv("DUPLICATE_WINDOW_SECONDS"), 45)
	ScanCacheTTLSeconds = atoiOr(os.Getenv("SCAN_CACHE_TTL_SECONDS"), 300)

	if IsProduction && JWTSecret == "" {
		log.Fatal("JWT_SECRET_KEY must be set in production")
	}
	if IsProduction && DatabaseDSN == "" {
		log.Fatal("DATABASE_DSN must be set in production")
	}

	log.Printf("[config] AppEnv=%s IsStaging=%v IsProduction=%v", AppEnv, IsStaging, IsProduction)
	log.Printf("[config] ChatTTL=%dm sweep=%ds countdown=%ds", ChatTTLMinutes, SweepIntervalSeconds, CountdownSeconds)
	log.Printf("[config] RateLimit window=%ds capacity=%d dupWindow=%ds scanCacheTTL=%ds",
		RateLimitWindowSeconds, RateLimitCapacity, DuplicateWindowSeconds, ScanCacheTTLSeconds)
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
