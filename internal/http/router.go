package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/recycleright-backend/internal/http/handlers"
	httpMW "github.com/yungbote/recycleright-backend/internal/http/middleware"
	"github.com/yungbote/recycleright-backend/internal/observability"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	Tracing     bool
	ServiceName string
	CORSOrigins []string

	AdminMiddleware *httpMW.AdminMiddleware

	HealthHandler   *httpH.HealthHandler
	ClassifyHandler *httpH.ClassifyHandler
	GuidanceHandler *httpH.GuidanceHandler
	UserHandler     *httpH.UserHandler
	RulesHandler    *httpH.RulesHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing {
		name := cfg.ServiceName
		if name == "" {
			name = "recycleright-api"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Classification
		if cfg.ClassifyHandler != nil {
			api.POST("/classify", cfg.ClassifyHandler.Classify)
		}

		// Guidance
		if cfg.GuidanceHandler != nil {
			api.GET("/guidance/:category", cfg.GuidanceHandler.GetGuidance)
			api.GET("/categories", cfg.GuidanceHandler.ListCategories)
		}

		// Ledger
		if cfg.UserHandler != nil {
			api.POST("/users", cfg.UserHandler.Register)
			api.GET("/users/:id/progress", cfg.UserHandler.GetProgress)
			api.GET("/users/:id/events", cfg.UserHandler.ListEvents)
			api.POST("/users/:id/disposals", cfg.UserHandler.ConfirmDisposal)
			api.GET("/users/:id/rank", cfg.UserHandler.GetRank)
			api.GET("/leaderboard", cfg.UserHandler.Leaderboard)
		}

		// Rules
		if cfg.RulesHandler != nil {
			api.GET("/achievements", cfg.RulesHandler.ListAchievements)
			api.GET("/challenges", cfg.RulesHandler.ListChallenges)
		}
	}

	admin := api.Group("/admin")
	{
		admin.Use(cfg.AdminMiddleware.RequireAdmin())
		if cfg.UserHandler != nil {
			admin.POST("/users/:id/adjustments", cfg.UserHandler.Adjust)
		}
	}

	return r
}
