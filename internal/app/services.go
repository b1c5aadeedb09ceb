package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/recycleright-backend/internal/achievement"
	"github.com/yungbote/recycleright-backend/internal/classify"
	domainagg "github.com/yungbote/recycleright-backend/internal/domain/aggregates"
	"github.com/yungbote/recycleright-backend/internal/guidance"
	"github.com/yungbote/recycleright-backend/internal/leaderboard"
	"github.com/yungbote/recycleright-backend/internal/ledger"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
	"github.com/yungbote/recycleright-backend/internal/realtime"
	"github.com/yungbote/recycleright-backend/internal/taxonomy"
)

type Services struct {
	Taxonomy     *taxonomy.Taxonomy
	Rules        *achievement.Engine
	Guidance     *guidance.Resolver
	Orchestrator *classify.Orchestrator
	Ledger       *ledger.Service
	Leaderboard  *leaderboard.Board
}

// LoadReference loads the taxonomy and rule tables, embedded or from disk.
func LoadReference(cfg Config) (*taxonomy.Taxonomy, *achievement.Engine, error) {
	var (
		tax *taxonomy.Taxonomy
		err error
	)
	if p := strings.TrimSpace(cfg.TaxonomyPath); p != "" {
		tax, err = taxonomy.Load(p)
	} else {
		tax, err = taxonomy.Default()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load taxonomy: %w", err)
	}

	var rules *achievement.Rules
	if p := strings.TrimSpace(cfg.RulesPath); p != "" {
		rules, err = achievement.Load(p)
	} else {
		rules, err = achievement.Default()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load rules: %w", err)
	}
	eng, err := achievement.New(rules, tax, cfg.Ledger.Location)
	if err != nil {
		return nil, nil, err
	}
	return tax, eng, nil
}

// NewLedger builds the scoring ledger over store. pub may be nil.
func NewLedger(log *logger.Logger, cfg Config, store domainagg.ProgressAggregate, tax *taxonomy.Taxonomy, rules *achievement.Engine, pub ledger.Publisher) (*ledger.Service, error) {
	return ledger.New(cfg.Ledger, ledger.Deps{
		Log:       log,
		Store:     store,
		Taxonomy:  tax,
		Rules:     rules,
		Publisher: pub,
	})
}

func wireServices(log *logger.Logger, cfg Config, tax *taxonomy.Taxonomy, rules *achievement.Engine, clients Clients, store domainagg.ProgressAggregate) (Services, error) {
	log.Info("Wiring services...")
	guide := guidance.NewResolver(tax, cfg.DefaultRegion)

	var archive classify.Archiver
	if clients.Archive != nil {
		archive = clients.Archive
	}
	orch, err := classify.New(log, cfg.Classify, tax, guide, clients.Primary, clients.Analyzer, archive)
	if err != nil {
		return Services{}, fmt.Errorf("init orchestrator: %w", err)
	}

	var pub ledger.Publisher
	if clients.Bus != nil {
		pub = realtime.NewPublisher(clients.Bus)
	}
	led, err := NewLedger(log, cfg, store, tax, rules, pub)
	if err != nil {
		return Services{}, fmt.Errorf("init ledger: %w", err)
	}
	board, err := leaderboard.New(log, store)
	if err != nil {
		return Services{}, err
	}
	return Services{
		Taxonomy:     tax,
		Rules:        rules,
		Guidance:     guide,
		Orchestrator: orch,
		Ledger:       led,
		Leaderboard:  board,
	}, nil
}
