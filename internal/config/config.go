package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"salestrack/internal/schema"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	AdminUsername         string
	AdminPassword         string
	ImportMinYear         int
	ImportHeaderScanRows  int
	ImportMaxErrors       int
	ImportColumnOffsets   []schema.Fallback
	NotifyTimeout         time.Duration
}

// Load reads the environment, after filling it from a .env file in the
// working directory when one exists. Variables already set win over the
// file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] WARN: read .env: %v", err)
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	offsets, err := schema.ParseFallbacks(getEnv("IMPORT_COLUMN_OFFSETS", schema.DefaultFallbacks))
	if err != nil {
		log.Printf("[config] WARN: IMPORT_COLUMN_OFFSETS: %v; using defaults", err)
		offsets, _ = schema.ParseFallbacks(schema.DefaultFallbacks)
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		AdminUsername:         getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:         os.Getenv("ADMIN_PASSWORD"),
		ImportMinYear:         positiveInt("IMPORT_MIN_YEAR", 2024),
		ImportHeaderScanRows:  positiveInt("IMPORT_HEADER_SCAN_ROWS", schema.DefaultScanRows),
		ImportMaxErrors:       positiveInt("IMPORT_MAX_ERRORS", 50),
		ImportColumnOffsets:   offsets,
		NotifyTimeout:         time.Duration(positiveInt("NOTIFY_TIMEOUT_SECONDS", 5)) * time.Second,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
