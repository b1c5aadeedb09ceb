package app

import (
	"fmt"

	"gorm.io/gorm"

	dataagg "github.com/yungbote/recycleright-backend/internal/data/aggregates"
	"github.com/yungbote/recycleright-backend/internal/data/db"
	domainagg "github.com/yungbote/recycleright-backend/internal/domain/aggregates"
	"github.com/yungbote/recycleright-backend/internal/ledger"
	"github.com/yungbote/recycleright-backend/internal/observability"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

// OpenStore builds the progress store for cfg. The returned DB is nil for the
// memory driver.
func OpenStore(log *logger.Logger, cfg db.Config) (domainagg.ProgressAggregate, *gorm.DB, error) {
	if cfg.Driver == db.DriverMemory || cfg.Driver == "" {
		log.Warn("Using in-memory progress store; ledger state is lost on restart")
		return ledger.NewMemoryStore(), nil, nil
	}
	gdb, err := db.Open(log, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		return nil, nil, fmt.Errorf("automigrate: %w", err)
	}
	store := dataagg.NewProgressAggregate(dataagg.ProgressAggregateDeps{
		Base: dataagg.BaseDeps{
			DB:    gdb,
			Log:   log,
			Hooks: dataagg.NewObservabilityHooks(observability.Current()),
		},
	})
	return store, gdb, nil
}
