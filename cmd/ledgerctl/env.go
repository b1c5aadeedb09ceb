package main

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/yungbote/recycleright-backend/internal/app"
	"github.com/yungbote/recycleright-backend/internal/leaderboard"
	"github.com/yungbote/recycleright-backend/internal/ledger"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
	"github.com/yungbote/recycleright-backend/internal/realtime"
	"github.com/yungbote/recycleright-backend/internal/realtime/bus"
)

// env is the slice of the server's wiring the CLI needs.
type env struct {
	log    *logger.Logger
	cfg    app.Config
	db     *gorm.DB
	ledger *ledger.Service
	board  *leaderboard.Board
	bus    bus.Bus
}

func openEnv(ctx context.Context, logMode string) (*env, error) {
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := app.LoadDotEnv(log); err != nil {
		return nil, err
	}
	cfg, err := app.LoadConfig(log)
	if err != nil {
		return nil, err
	}
	tax, rules, err := app.LoadReference(cfg)
	if err != nil {
		return nil, err
	}
	store, gdb, err := app.OpenStore(log, cfg.Store)
	if err != nil {
		return nil, err
	}
	e := &env{log: log, cfg: cfg, db: gdb, bus: bus.NewNoop()}
	if cfg.RedisAddr != "" {
		rb, err := bus.NewRedisBus(log, bus.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			// Corrections still land in the store; live clients just miss the push.
			log.Warn("redis unavailable, notifications disabled", "error", err)
		} else {
			e.bus = rb
		}
	}
	e.ledger, err = app.NewLedger(log, cfg, store, tax, rules, realtime.NewPublisher(e.bus))
	if err != nil {
		e.close()
		return nil, err
	}
	e.board, err = leaderboard.New(log, store)
	if err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

func (e *env) close() {
	if e == nil {
		return
	}
	if e.bus != nil {
		_ = e.bus.Close()
	}
	if e.db != nil {
		if sqlDB, err := e.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if e.log != nil {
		e.log.Sync()
	}
}

func logModeFromEnv() string {
	if v := os.Getenv("LOG_MODE"); v != "" {
		return v
	}
	return "development"
}
