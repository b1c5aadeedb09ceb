package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/recycleright-backend/internal/classify"
	infconfig "github.com/yungbote/recycleright-backend/internal/inference/config"
	"github.com/yungbote/recycleright-backend/internal/inference/engine"
	infrouter "github.com/yungbote/recycleright-backend/internal/inference/router"
	"github.com/yungbote/recycleright-backend/internal/platform/gcp"
	"github.com/yungbote/recycleright-backend/internal/platform/gemini"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
	"github.com/yungbote/recycleright-backend/internal/platform/openai"
	"github.com/yungbote/recycleright-backend/internal/realtime/bus"
	"github.com/yungbote/recycleright-backend/internal/taxonomy"
)

type Clients struct {
	Primary  engine.Engine
	Analyzer classify.Analyzer
	Archive  gcp.ScanArchive
	Bus      bus.Bus
	// Redis is set only when Bus is backed by redis.
	Redis *bus.RedisBus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, tax *taxonomy.Taxonomy) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Primary engine
	infCfg, err := infconfig.Load()
	if err != nil {
		return Clients{}, fmt.Errorf("inference config: %w", err)
	}
	primary, err := infrouter.New(ctx, infCfg, infrouter.Deps{Log: log, Known: tax.Known})
	if err != nil {
		return Clients{}, fmt.Errorf("init primary engine: %w", err)
	}
	if err := primary.Ready(ctx); err != nil {
		_ = primary.Close()
		return Clients{}, fmt.Errorf("%w: %s: %v", classify.ErrModelUnavailable, primary.Name(), err)
	}
	out.Primary = primary
	log.Info("Primary engine ready", "engine", primary.Name())

	// Secondary analyzer
	var model classify.VisionModel
	switch cfg.SecondaryProvider {
	case SecondaryOpenAI:
		oc := openai.ConfigFromEnv()
		if strings.TrimSpace(oc.APIKey) != "" {
			c, err := openai.NewClient(log, oc)
			if err != nil {
				out.Close()
				return Clients{}, fmt.Errorf("init openai client: %w", err)
			}
			model = classify.OpenAIVision(c)
		}
	case SecondaryGemini:
		gc := gemini.ConfigFromEnv()
		if strings.TrimSpace(gc.APIKey) != "" {
			c, err := gemini.NewClient(ctx, log, gc)
			if err != nil {
				out.Close()
				return Clients{}, fmt.Errorf("init gemini client: %w", err)
			}
			model = classify.GeminiVision(c)
		}
	}
	if model != nil {
		an, err := classify.NewLLMAnalyzer(model, tax)
		if err != nil {
			out.Close()
			return Clients{}, err
		}
		out.Analyzer = an
		log.Info("Secondary analyzer enabled", "model", an.Name())
	} else {
		log.Warn("Secondary analyzer disabled; low-confidence scans are flagged instead", "provider", cfg.SecondaryProvider)
	}

	// Scan archive
	if cfg.ArchiveBucket != "" {
		ar, err := gcp.NewScanArchive(ctx, log, cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init scan archive: %w", err)
		}
		out.Archive = ar
	}

	// Redis
	if cfg.RedisAddr != "" {
		rb, err := bus.NewRedisBus(log, bus.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init redis ledger bus: %w", err)
		}
		out.Bus, out.Redis = rb, rb
	} else {
		out.Bus = bus.NewNoop()
	}
	return out, nil
}

func (c Clients) Close() {
	if c.Primary != nil {
		_ = c.Primary.Close()
	}
	if c.Archive != nil {
		_ = c.Archive.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
