package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=kartoteka port=5432 sslmode=disable"

type Config struct {
	HTTPPort        string
	DatabaseDSN     string
	JWTSecret       string
	CORSOrigins     string
	LogLevel        string // silent, error, warn, info
	BackupRetention int    // how many backups Checkpoint keeps

	ArchiveDriver      string // fs | s3
	ArchiveFSRoot      string
	ArchiveS3Bucket    string
	ArchiveS3Region    string
	ArchiveS3Endpoint  string
	ArchiveS3PathStyle bool
}

func Load() *Config {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:     getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		CORSOrigins:     getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "warn")),
		BackupRetention: getEnvInt("BACKUP_RETENTION", 50),

		ArchiveDriver:      strings.ToLower(getEnv("ARCHIVE_DRIVER", "fs")),
		ArchiveFSRoot:      getEnv("ARCHIVE_FS_ROOT", "./archive"),
		ArchiveS3Bucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
		ArchiveS3Region:    getEnv("ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Endpoint:  getEnv("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveS3PathStyle: strings.EqualFold(getEnv("ARCHIVE_S3_PATH_STYLE", "false"), "true"),
	}

	if cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN default value in use, set your own Postgres connection for production.")
	}
	if cfg.BackupRetention < 1 {
		log.Printf("[WARN] BACKUP_RETENTION=%d is not usable, falling back to 50", cfg.BackupRetention)
		cfg.BackupRetention = 50
	}

	return cfg
}

// ValidateServer checks the settings the HTTP server cannot run without.
func (c *Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS default value in use, set your own domain for production.")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[WARN] %s=%q is not a number, using %d", key, v, def)
		return def
	}
	return n
}
