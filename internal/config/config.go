package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Addr          string
	CORSOrigins   []string
	TrustProxy    bool
	Store         string
	DatabaseURL   string
	MigrationsDir string
	// Authorization
	AdminEmails      []string
	PolicyFile       string
	IdentityJWTKey   string
	IdentityURL      string
	IdentityAPIKey   string
	IdentityAudience string
	// Ingestion
	IngestSecret     string
	IngestSecretHash string
	IngestKeepStatus bool
	OwnerName        string
	// Rate limiting; an empty RedisURL keeps counters in process
	RedisURL    string
	CommentRate int
	IngestRate  int
	RateWindow  time.Duration
	// Optional infrastructure
	MeiliURL       string
	MeiliMasterKey string
	ArchiveDir     string
	Media          MediaConfig
	SMTP           SMTPConfig
	// NotifyEmails receive pending-comment notices; defaults to AdminEmails
	NotifyEmails []string
}

type MediaConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

func (m MediaConfig) Enabled() bool {
	return strings.TrimSpace(m.Endpoint) != ""
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

// Load reads the environment, after merging a .env file when one exists.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:          getenv("API_ADDR", ":8787"),
		CORSOrigins:   splitCSV(getenv("ATLAS_CORS_ORIGINS", "*")),
		TrustProxy:    getenvBool("ATLAS_TRUST_PROXY", false),
		Store:         strings.ToLower(getenv("ATLAS_STORE", StorePostgres)),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		MigrationsDir: getenv("ATLAS_MIGRATIONS_DIR", "./db/migrations"),

		AdminEmails:      splitCSV(getenv("ADMIN_EMAIL", "")),
		PolicyFile:       getenv("ATLAS_POLICY_FILE", ""),
		IdentityJWTKey:   getenv("IDENTITY_JWT_SECRET", ""),
		IdentityURL:      getenv("IDENTITY_URL", ""),
		IdentityAPIKey:   getenv("IDENTITY_API_KEY", ""),
		IdentityAudience: getenv("IDENTITY_AUDIENCE", "authenticated"),

		IngestSecret:     getenv("ATLAS_INGEST_SECRET", ""),
		IngestSecretHash: getenv("ATLAS_INGEST_SECRET_HASH", ""),
		IngestKeepStatus: !strings.EqualFold(getenv("ATLAS_INGEST_PUBLISHED", "keep"), "revert"),
		OwnerName:        getenv("ATLAS_OWNER_NAME", "Site owner"),

		RedisURL:    getenv("REDIS_URL", ""),
		CommentRate: getenvInt("ATLAS_COMMENT_RATE", 5),
		IngestRate:  getenvInt("ATLAS_INGEST_RATE", 30),
		RateWindow:  time.Duration(getenvInt("ATLAS_RATE_WINDOW_SECONDS", 60)) * time.Second,

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		ArchiveDir:     getenv("ATLAS_ARCHIVE_DIR", ""),
		Media: MediaConfig{
			Endpoint:  getenv("MINIO_ENDPOINT", ""),
			AccessKey: getenv("MINIO_ACCESS_KEY", ""),
			SecretKey: getenv("MINIO_SECRET_KEY", ""),
			Bucket:    getenv("MINIO_BUCKET", "covers"),
			UseSSL:    getenvBool("MINIO_USE_SSL", false),
			PublicURL: getenv("MINIO_PUBLIC_URL", ""),
		},
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getenv("SMTP_PORT", "587"),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", ""),
			FromName: getenv("SMTP_FROM_NAME", "Atlas"),
		},
		NotifyEmails: splitCSV(getenv("ATLAS_NOTIFY_EMAIL", getenv("ADMIN_EMAIL", ""))),
	}
}

// Validate reports every missing setting at once.
func (c Config) Validate() error {
	var problems []error
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreMemory:
	default:
		problems = append(problems, fmt.Errorf("ATLAS_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store))
	}
	if c.IdentityJWTKey == "" && c.IdentityURL == "" {
		problems = append(problems, errors.New("set IDENTITY_JWT_SECRET or IDENTITY_URL"))
	}
	if len(c.AdminEmails) == 0 && c.PolicyFile == "" {
		problems = append(problems, errors.New("set ADMIN_EMAIL or ATLAS_POLICY_FILE"))
	}
	if c.IngestSecret == "" && c.IngestSecretHash == "" {
		problems = append(problems, errors.New("set ATLAS_INGEST_SECRET or ATLAS_INGEST_SECRET_HASH"))
	}
	if c.CommentRate <= 0 || c.IngestRate <= 0 || c.RateWindow <= 0 {
		problems = append(problems, errors.New("rate limits and window must be positive"))
	}
	if c.Media.Enabled() && (c.Media.AccessKey == "" || c.Media.SecretKey == "") {
		problems = append(problems, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required with MINIO_ENDPOINT"))
	}
	return errors.Join(problems...)
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
