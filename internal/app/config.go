package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/recycleright-backend/internal/classify"
	"github.com/yungbote/recycleright-backend/internal/data/db"
	"github.com/yungbote/recycleright-backend/internal/ledger"
	"github.com/yungbote/recycleright-backend/internal/platform/envutil"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

const (
	SecondaryOpenAI = "openai"
	SecondaryGemini = "gemini"
	SecondaryNone   = "none"
)

type Config struct {
	Port        string
	Environment string
	Version     string

	Classify          classify.Config
	SecondaryProvider string
	DefaultRegion     string
	TaxonomyPath      string
	RulesPath         string
	MaxImageBytes     int64

	Ledger ledger.Config
	Store  db.Config

	RedisAddr     string
	RedisPassword string
	RedisChannel  string

	ArchiveBucket string
	ArchivePrefix string

	AdminToken    string
	CORSOrigins   []string
	ShutdownGrace time.Duration
}

// LoadConfig reads the environment once at startup. Only values that cannot
// be interpreted at all are errors; everything else falls back to defaults.
// LoadDotEnv reads ENV_FILE (default .env) into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(log *logger.Logger) error {
	path := envutil.String("ENV_FILE", ".env")
	err := godotenv.Load(path)
	switch {
	case err == nil:
		log.Info("Loaded environment file", "path", path)
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("load %s: %w", path, err)
	}
}

func LoadConfig(log *logger.Logger) (Config, error) {
	loc, err := loadLocation(envutil.String("LEDGER_TIMEZONE", "Local"))
	if err != nil {
		return Config{}, err
	}
	levels, err := ledger.ParseLevels(envutil.String("LEVEL_THRESHOLDS", ledger.DefaultLevels))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		Classify: classify.Config{
			Threshold:        envutil.Float("CONFIDENCE_THRESHOLD", 0.7),
			SecondaryTimeout: envutil.Duration("SECONDARY_TIMEOUT", 8*time.Second),
			SecondaryRetries: envutil.Int("SECONDARY_RETRIES", 1),
			MaxInflight:      int64(envutil.Int("SECONDARY_MAX_INFLIGHT", 8)),
			ArchiveTimeout:   envutil.Duration("SCAN_ARCHIVE_TIMEOUT", 5*time.Second),
		},
		SecondaryProvider: strings.ToLower(envutil.String("SECONDARY_PROVIDER", SecondaryOpenAI)),
		DefaultRegion:     envutil.String("DEFAULT_REGION", "default"),
		TaxonomyPath:      envutil.String("TAXONOMY_PATH", ""),
		RulesPath:         envutil.String("RULES_PATH", ""),
		MaxImageBytes:     int64(envutil.Int("MAX_IMAGE_BYTES", 10<<20)),

		Ledger: ledger.Config{
			PointsPerScan:           envutil.Int("POINTS_PER_SCAN", 5),
			PointsProperDisposal:    envutil.Int("POINTS_PROPER_DISPOSAL", 10),
			MaxDailyPoints:          envutil.Int("MAX_DAILY_POINTS", 100),
			HighConfidenceThreshold: envutil.Float("HIGH_CONFIDENCE_THRESHOLD", 0.95),
			Levels:                  levels,
			Location:                loc,
			PublishTimeout:          envutil.Duration("LEDGER_PUBLISH_TIMEOUT", 2*time.Second),
		},
		Store: db.Config{
			Driver:        strings.ToLower(envutil.String("STORE_DRIVER", db.DriverMemory)),
			PostgresDSN:   envutil.String("POSTGRES_DSN", ""),
			SQLitePath:    envutil.String("SQLITE_PATH", "recycleright.db"),
			MaxOpenConns:  envutil.Int("DB_MAX_OPEN_CONNS", 20),
			SlowThreshold: envutil.Duration("DB_SLOW_THRESHOLD", 200*time.Millisecond),
		},

		RedisAddr:     envutil.String("REDIS_ADDR", ""),
		RedisPassword: envutil.String("REDIS_PASSWORD", ""),
		RedisChannel:  envutil.String("REDIS_CHANNEL", "ledger"),

		ArchiveBucket: envutil.String("SCAN_ARCHIVE_BUCKET", ""),
		ArchivePrefix: envutil.String("SCAN_ARCHIVE_PREFIX", "scans"),

		AdminToken:    envutil.String("ADMIN_TOKEN", ""),
		CORSOrigins:   splitList(envutil.String("CORS_ORIGINS", "")),
		ShutdownGrace: envutil.Duration("SHUTDOWN_GRACE", 15*time.Second),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if log != nil {
		log.Info("Configuration loaded",
			"store_driver", cfg.Store.Driver,
			"secondary_provider", cfg.SecondaryProvider,
			"confidence_threshold", cfg.Classify.Threshold,
			"max_daily_points", cfg.Ledger.MaxDailyPoints,
			"ledger_timezone", loc.String(),
			"redis", cfg.RedisAddr != "",
			"scan_archive", cfg.ArchiveBucket != "",
			"admin_routes", cfg.AdminToken != "",
		)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.SecondaryProvider {
	case SecondaryOpenAI, SecondaryGemini, SecondaryNone:
	default:
		return fmt.Errorf("unsupported SECONDARY_PROVIDER %q", c.SecondaryProvider)
	}
	switch c.Store.Driver {
	case db.DriverMemory, db.DriverSQLite, db.DriverPostgres:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Classify.Threshold <= 0 || c.Classify.Threshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be in (0,1], got %v", c.Classify.Threshold)
	}
	if c.Ledger.PointsPerScan < 0 || c.Ledger.PointsProperDisposal < 0 || c.Ledger.MaxDailyPoints < 0 {
		return fmt.Errorf("point settings must be non-negative")
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("LEDGER_TIMEZONE: %w", err)
	}
	return loc, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
