package app

import (
	"github.com/gin-gonic/gin"

	httpapi "github.com/yungbote/recycleright-backend/internal/http"
	httpH "github.com/yungbote/recycleright-backend/internal/http/handlers"
	httpMW "github.com/yungbote/recycleright-backend/internal/http/middleware"
	"github.com/yungbote/recycleright-backend/internal/observability"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, cfg Config, svcs Services, clients Clients, tracing bool) *gin.Engine {
	log.Info("Wiring router...")
	checks := map[string]httpH.Readiness{"primary_engine": clients.Primary}
	return httpapi.NewRouter(httpapi.RouterConfig{
		Log:         log,
		Metrics:     observability.Current(),
		Tracing:     tracing,
		ServiceName: "recycleright-api",
		CORSOrigins: cfg.CORSOrigins,

		AdminMiddleware: httpMW.NewAdminMiddleware(log, cfg.AdminToken),

		HealthHandler:   httpH.NewHealthHandler(checks),
		ClassifyHandler: httpH.NewClassifyHandler(log, svcs.Orchestrator, cfg.MaxImageBytes),
		GuidanceHandler: httpH.NewGuidanceHandler(svcs.Guidance, svcs.Taxonomy),
		UserHandler:     httpH.NewUserHandler(svcs.Ledger, svcs.Leaderboard),
		RulesHandler:    httpH.NewRulesHandler(svcs.Rules, svcs.Ledger.Now),
	})
}
