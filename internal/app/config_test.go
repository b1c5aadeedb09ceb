package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/recycleright-backend/internal/data/db"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{
		"LEDGER_TIMEZONE", "LEVEL_THRESHOLDS", "SECONDARY_PROVIDER", "STORE_DRIVER",
		"CONFIDENCE_THRESHOLD", "POINTS_PER_SCAN", "MAX_DAILY_POINTS", "CORS_ORIGINS",
	} {
		t.Setenv(k, "")
	}
	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Store.Driver != db.DriverMemory || cfg.SecondaryProvider != SecondaryOpenAI {
		t.Fatalf("driver=%q provider=%q", cfg.Store.Driver, cfg.SecondaryProvider)
	}
	if cfg.Classify.Threshold != 0.7 || cfg.Ledger.PointsPerScan != 5 || cfg.Ledger.MaxDailyPoints != 100 {
		t.Fatalf("classify=%+v ledger=%+v", cfg.Classify, cfg.Ledger)
	}
	if len(cfg.Ledger.Levels) != 5 || cfg.Ledger.Location != time.Local {
		t.Fatalf("levels=%v loc=%v", cfg.Ledger.Levels, cfg.Ledger.Location)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LEDGER_TIMEZONE", "UTC")
	t.Setenv("LEVEL_THRESHOLDS", "Seed:0,Tree:50")
	t.Setenv("SECONDARY_PROVIDER", "Gemini")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SECONDARY_TIMEOUT", "3s")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Ledger.Location != time.UTC || len(cfg.Ledger.Levels) != 2 || cfg.Ledger.Levels[1].Threshold != 50 {
		t.Fatalf("ledger=%+v", cfg.Ledger)
	}
	if cfg.SecondaryProvider != SecondaryGemini || cfg.Store.Driver != db.DriverSQLite {
		t.Fatalf("provider=%q driver=%q", cfg.SecondaryProvider, cfg.Store.Driver)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("origins=%v", cfg.CORSOrigins)
	}
	if cfg.Classify.SecondaryTimeout != 3*time.Second {
		t.Fatalf("timeout=%v", cfg.Classify.SecondaryTimeout)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string][2]string{
		"timezone":  {"LEDGER_TIMEZONE", "Mars/Olympus"},
		"levels":    {"LEVEL_THRESHOLDS", "A:5"},
		"provider":  {"SECONDARY_PROVIDER", "claude"},
		"driver":    {"STORE_DRIVER", "mongo"},
		"threshold": {"CONFIDENCE_THRESHOLD", "1.5"},
		"points":    {"POINTS_PER_SCAN", "-1"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := LoadConfig(nil); err == nil {
				t.Fatalf("%s=%s accepted", kv[0], kv[1])
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	body := "POINTS_PER_SCAN=7\nDEFAULT_REGION=berlin\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("POINTS_PER_SCAN", "")
	os.Unsetenv("POINTS_PER_SCAN")
	t.Setenv("DEFAULT_REGION", "oslo")

	if err := LoadDotEnv(logger.Nop()); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("POINTS_PER_SCAN"); got != "7" {
		t.Fatalf("POINTS_PER_SCAN=%q", got)
	}
	if got := os.Getenv("DEFAULT_REGION"); got != "oslo" {
		t.Fatalf("existing variable overridden: %q", got)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	if err := LoadDotEnv(logger.Nop()); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}
