package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// AppSection holds HTTP server and request handling settings.
type AppSection struct {
	AppPort            string   `json:"AppPort" env:"APP_PORT" env-default:"8080"`
	JWTSecret          string   `json:"JWTSecret" env:"JWT_SECRET"`
	RateLimitPerMinute int      `json:"RateLimitPerMinute" env:"RATE_LIMIT_PER_MINUTE" env-default:"60"`
	AllowedOrigins     []string `json:"AllowedOrigins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
	AdminUsernames     []string `json:"AdminUsernames" env:"ADMIN_USERNAMES"`
	GinMode            string   `json:"GinMode" env:"GIN_MODE" env-default:"release"`
	GinPath            string   `json:"GinPath" env:"GIN_PATH" env-default:"logs/go_gin.log"`
	ShutdownTimeoutSec int      `json:"ShutdownTimeoutSec" env:"SHUTDOWN_TIMEOUT_SEC" env-default:"30"`
	MaxAttachmentMB    int      `json:"MaxAttachmentMB" env:"MAX_ATTACHMENT_MB" env-default:"50"`
}

// DatabaseSection selects the gorm dialect and its connection settings.
// Driver is "mysql" (default) or "sqlite"; DatabaseURI overrides the discrete fields.
type DatabaseSection struct {
	Driver             string `json:"Driver" env:"DB_DRIVER" env-default:"mysql"`
	DatabaseURI        string `json:"DatabaseURI" env:"DATABASE_URI"`
	DBHost             string `json:"DBHost" env:"DB_HOST" env-default:"127.0.0.1"`
	DBPort             string `json:"DBPort" env:"DB_PORT" env-default:"3306"`
	DBUser             string `json:"DBUser" env:"DB_USER" env-default:"root"`
	DBPassword         string `json:"DBPassword" env:"DB_PASSWORD"`
	DBName             string `json:"DBName" env:"DB_NAME" env-default:"discussion"`
	MaxOpenConns       int    `json:"MaxOpenConns" env:"DB_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns       int    `json:"MaxIdleConns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetimeMin int    `json:"ConnMaxLifetimeMin" env:"DB_CONN_MAX_LIFETIME_MIN" env-default:"30"`
	SkipMigrations     bool   `json:"SkipMigrations" env:"DB_SKIP_MIGRATIONS"`
}

// RedisSection configures the response cache. An empty host disables caching.
type RedisSection struct {
	RedisHost     string `json:"RedisHost" env:"REDIS_HOST"`
	RedisPort     int    `json:"RedisPort" env:"REDIS_PORT" env-default:"6379"`
	RedisDB       int    `json:"RedisDB" env:"REDIS_DB"`
	RedisPassword string `json:"RedisPassword" env:"REDIS_PASSWORD"`
	CacheTTLSec   int    `json:"CacheTTLSec" env:"CACHE_TTL_SEC" env-default:"3600"`
}

// SMTPSection configures outgoing notification mail.
type SMTPSection struct {
	SMTPHost     string `json:"SMTPHost" env:"SMTP_HOST"`
	SMTPPort     int    `json:"SMTPPort" env:"SMTP_PORT" env-default:"587"`
	SMTPUsername string `json:"SMTPUsername" env:"SMTP_USERNAME"`
	SMTPPassword string `json:"SMTPPassword" env:"SMTP_PASSWORD"`
	SMTPFrom     string `json:"SMTPFrom" env:"SMTP_FROM"`
	SMTPFromName string `json:"SMTPFromName" env:"SMTP_FROM_NAME" env-default:"Discussions"`
	SMTPTLS      bool   `json:"SMTPTLS" env:"SMTP_TLS"`
}

// LogSection configures zap and its lumberjack file sink.
type LogSection struct {
	Level      string `json:"Level" env:"LOG_LEVEL" env-default:"info"`
	Path       string `json:"Path" env:"LOG_PATH"`
	MaxSizeMB  int    `json:"MaxSizeMB" env:"LOG_MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `json:"MaxBackups" env:"LOG_MAX_BACKUPS" env-default:"3"`
	MaxAgeDays int    `json:"MaxAgeDays" env:"LOG_MAX_AGE_DAYS" env-default:"7"`
	Compress   bool   `json:"Compress" env:"LOG_COMPRESS"`
}

// MinIOSection configures attachment storage. An empty endpoint disables attachments.
type MinIOSection struct {
	Endpoint         string `json:"Endpoint" env:"MINIO_ENDPOINT"`
	AccessKey        string `json:"AccessKey" env:"MINIO_ACCESS_KEY"`
	SecretKey        string `json:"SecretKey" env:"MINIO_SECRET_KEY"`
	Bucket           string `json:"Bucket" env:"MINIO_BUCKET" env-default:"discussion"`
	UseSSL           bool   `json:"UseSSL" env:"MINIO_USE_SSL"`
	PresignExpiryMin int    `json:"PresignExpiryMin" env:"MINIO_PRESIGN_EXPIRY_MIN" env-default:"15"`
}

// NotifySection controls subscriber notification fan-out.
type NotifySection struct {
	// Sync delivers notifications inside the request instead of on a background goroutine.
	Sync  bool `json:"Sync" env:"NOTIFY_SYNC"`
	Email bool `json:"Email" env:"NOTIFY_EMAIL"`
	// RelatedTables maps a related-object content type to the table holding its rows,
	// e.g. "project:projects,group:crowd_groups".
	RelatedTables       map[string]string `json:"RelatedTables" env:"NOTIFY_RELATED_TABLES"`
	TimeoutSec          int               `json:"TimeoutSec" env:"NOTIFY_TIMEOUT_SEC" env-default:"30"`
	PruneReadAfterDays  int               `json:"PruneReadAfterDays" env:"NOTIFY_PRUNE_READ_AFTER_DAYS" env-default:"90"`
	PruneIntervalMinute int               `json:"PruneIntervalMinute" env:"NOTIFY_PRUNE_INTERVAL_MIN" env-default:"60"`
}

// AppConfig holds file and environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	App      AppSection      `json:"app"`
	Database DatabaseSection `json:"database"`
	Redis    RedisSection    `json:"redis"`
	SMTP     SMTPSection     `json:"smtp"`
	Log      LogSection      `json:"log"`
	MinIO    MinIOSection    `json:"minio"`
	Notify   NotifySection   `json:"notify"`
}

var (
	cfg    AppConfig
	loaded bool
	mu     sync.RWMutex
)

// DefaultPath is where Load looks for the JSON config file.
var DefaultPath = filepath.Join("config", "config.json")

// Load loads the application configuration once during boot and exits on invalid input.
func Load() AppConfig {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()

	// .env is optional; real environment variables take precedence over it.
	_ = godotenv.Load()

	c, err := LoadFrom(DefaultPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	Set(c)
	return c
}

// LoadFrom reads configuration with precedence config file -> defaults -> environment.
// A missing file is not an error.
func LoadFrom(path string) (AppConfig, error) {
	var c AppConfig
	if _, statErr := os.Stat(path); statErr == nil {
		if err := cleanenv.ReadConfig(path, &c); err != nil {
			return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&c); err != nil {
		return AppConfig{}, fmt.Errorf("read env: %w", err)
	}

	normalize(&c)
	if err := c.Validate(); err != nil {
		return AppConfig{}, err
	}
	return c, nil
}

// Validate rejects configurations the service cannot start with.
func (c AppConfig) Validate() error {
	if c.App.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set in environment variables")
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	mu.RLock()
	if loaded {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()
	return Load()
}

// Set installs c as the process-wide configuration.
func Set(c AppConfig) {
	mu.Lock()
	cfg = c
	loaded = true
	mu.Unlock()
}

// IsAdmin reports whether username is listed in App.AdminUsernames.
func (c AppConfig) IsAdmin(username string) bool {
	if username == "" {
		return false
	}
	for _, u := range c.App.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), username) {
			return true
		}
	}
	return false
}

func normalize(c *AppConfig) {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.App.AllowedOrigins = splitAndTrim(c.App.AllowedOrigins)
	c.App.AdminUsernames = splitAndTrim(c.App.AdminUsernames)
	if len(c.App.AllowedOrigins) == 0 {
		c.App.AllowedOrigins = []string{"*"}
	}
}

func splitAndTrim(raw []string) []string {
	items := []string{}
	for _, item := range raw {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
