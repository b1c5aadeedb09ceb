package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	httpapi "github.com/yungbote/recycleright-backend/internal/http"
	"github.com/yungbote/recycleright-backend/internal/observability"
	"github.com/yungbote/recycleright-backend/internal/platform/envutil"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Clients  Clients
	Services Services

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if logMode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := LoadDotEnv(log); err != nil {
		log.Sync()
		return nil, err
	}
	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	observability.Init(log)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "recycleright-api",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	tax, rules, err := LoadReference(cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	store, gdb, err := OpenStore(log, cfg.Store)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init progress store: %w", err)
	}

	clientset, err := wireClients(ctx, log, cfg, tax)
	if err != nil {
		closeDB(gdb)
		log.Sync()
		return nil, err
	}

	serviceset, err := wireServices(log, cfg, tax, rules, clientset, store)
	if err != nil {
		clientset.Close()
		closeDB(gdb)
		log.Sync()
		return nil, err
	}

	router := wireRouter(log, cfg, serviceset, clientset, otelShutdown != nil)

	return &App{
		Log:          log,
		DB:           gdb,
		Router:       router,
		Cfg:          cfg,
		Clients:      clientset,
		Services:     serviceset,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background collectors for metrics. It is a no-op when
// metrics are disabled.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	m := observability.Current()
	if m == nil {
		return
	}
	if a.DB != nil {
		m.StartDBCollector(ctx, a.Log, a.DB)
	}
	if a.Clients.Redis != nil {
		m.StartRedisCollector(ctx, a.Log, a.Clients.Redis.Client())
	}
	if addr := envutil.String("METRICS_ADDR", ""); addr != "" {
		m.StartServer(ctx, a.Log, addr)
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := net.JoinHostPort("", a.Cfg.Port)
	a.Log.Info("HTTP server listening", "addr", addr)
	srv := &httpapi.Server{Engine: a.Router}
	return srv.Run(ctx, addr, a.Cfg.ShutdownGrace)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	closeDB(a.DB)
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

func closeDB(gdb *gorm.DB) {
	if gdb == nil {
		return
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
