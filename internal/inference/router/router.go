package router

import (
	"context"
	"fmt"

	"github.com/yungbote/recycleright-backend/internal/inference/config"
	"github.com/yungbote/recycleright-backend/internal/inference/engine"
	"github.com/yungbote/recycleright-backend/internal/inference/engine/gcpvision"
	"github.com/yungbote/recycleright-backend/internal/inference/engine/mock"
	"github.com/yungbote/recycleright-backend/internal/inference/engine/tfserving"
	"github.com/yungbote/recycleright-backend/internal/platform/gcp"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

// Deps are collaborators some engines need. Zero values are fine for mock.
type Deps struct {
	Log *logger.Logger
	// Known lets the Vision engine prefer labels the taxonomy recognizes.
	Known gcpvision.Matcher
	// Detector overrides the Cloud Vision client, mainly for tests.
	Detector gcp.LabelDetector
}

// New builds the primary engine selected by cfg.Engine.
func New(ctx context.Context, cfg *config.Config, deps Deps) (engine.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("inference config required")
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	switch cfg.Engine {
	case config.EngineMock, "":
		return mock.New(cfg.Mock.Labels), nil
	case config.EngineTFServing:
		return tfserving.New(cfg.TFServing)
	case config.EngineGCPVision:
		det := deps.Detector
		if det == nil {
			d, err := gcp.NewLabelDetector(ctx, log, cfg.GCPVision.Timeout.Duration)
			if err != nil {
				return nil, err
			}
			det = d
		}
		return gcpvision.New(det, deps.Known, cfg.GCPVision.MaxResults)
	default:
		return nil, fmt.Errorf("unsupported engine type %q", cfg.Engine)
	}
}
