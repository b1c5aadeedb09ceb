package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/recycleright-backend/internal/platform/envutil"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	classifications   *CounterVec
	classifyLatency   *HistogramVec
	secondaryRequests *CounterVec
	secondaryLatency  *HistogramVec
	secondaryTokens   *CounterVec
	secondaryRejected *Counter
	archiveWrites     *CounterVec

	pointsAwarded       *CounterVec
	dailyCapHits        *Counter
	achievementUnlocks  *CounterVec
	challengeCompletion *CounterVec
	ledgerConflicts     *Counter
	leaderboardLatency  *HistogramVec
	leaderboardShared   *Counter

	storeOps       *HistogramVec
	storeConflicts *CounterVec
	storeRetries   *CounterVec

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when metrics are disabled.
// Every method is nil-safe.
func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

// New builds an unregistered metrics set. Init is the process-wide entry point.
func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("rr_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"rr_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("rr_api_inflight_requests", "In-flight API requests."),

		classifications: NewCounterVec("rr_classifications_total", "Classifications by source/outcome.", []string{"source", "outcome"}),
		classifyLatency: NewHistogramVec(
			"rr_classification_duration_seconds",
			"End-to-end classification latency by source.",
			[]string{"source"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		),
		secondaryRequests: NewCounterVec("rr_secondary_requests_total", "Secondary analyzer calls by provider/status.", []string{"provider", "status"}),
		secondaryLatency: NewHistogramVec(
			"rr_secondary_request_duration_seconds",
			"Secondary analyzer latency by provider/status.",
			[]string{"provider", "status"},
			[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		secondaryTokens:   NewCounterVec("rr_secondary_tokens_total", "Secondary analyzer tokens by provider/direction.", []string{"provider", "direction"}),
		secondaryRejected: NewCounter("rr_secondary_quota_rejected_total", "Escalations skipped because the in-flight quota was exhausted."),
		archiveWrites:     NewCounterVec("rr_scan_archive_writes_total", "Scan archive uploads by status.", []string{"status"}),

		pointsAwarded:       NewCounterVec("rr_points_awarded_total", "Points credited by kind.", []string{"kind"}),
		dailyCapHits:        NewCounter("rr_daily_cap_hits_total", "Disposals that hit the daily points cap."),
		achievementUnlocks:  NewCounterVec("rr_achievements_unlocked_total", "Achievement unlocks by id.", []string{"achievement"}),
		challengeCompletion: NewCounterVec("rr_challenges_completed_total", "Challenge completions by id.", []string{"challenge"}),
		ledgerConflicts:     NewCounter("rr_ledger_conflicts_total", "Optimistic concurrency conflicts retried by the ledger."),
		leaderboardLatency: NewHistogramVec(
			"rr_leaderboard_build_seconds",
			"Leaderboard computation latency.",
			[]string{},
			[]float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		),
		leaderboardShared: NewCounter("rr_leaderboard_shared_total", "Leaderboard reads served by an in-flight computation."),

		storeOps: NewHistogramVec(
			"rr_store_operation_duration_seconds",
			"Progress store write latency by operation/status.",
			[]string{"op", "status"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		),
		storeConflicts: NewCounterVec("rr_store_conflicts_total", "Progress store writes rejected by the version guard.", []string{"op"}),
		storeRetries:   NewCounterVec("rr_store_retryable_total", "Progress store writes that failed with a transient error.", []string{"op"}),

		pgStats:   NewGaugeVec("rr_db_stats", "Database connection pool stats.", []string{"metric"}),
		redisUp:   NewGauge("rr_redis_up", "Redis connectivity (1=up, 0=down)."),
		redisPing: NewGauge("rr_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	all := []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.classifications, m.classifyLatency,
		m.secondaryRequests, m.secondaryLatency, m.secondaryTokens, m.secondaryRejected,
		m.archiveWrites,
		m.pointsAwarded, m.dailyCapHits, m.achievementUnlocks, m.challengeCompletion,
		m.ledgerConflicts, m.leaderboardLatency, m.leaderboardShared,
		m.storeOps, m.storeConflicts, m.storeRetries,
		m.pgStats, m.redisUp, m.redisPing,
	}
	for _, pw := range all {
		if err := pw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveClassification records one orchestrated classification. outcome is
// one of primary, secondary, fallback or error.
func (m *Metrics) ObserveClassification(source, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	m.classifications.Inc(source, outcome)
	if dur > 0 {
		m.classifyLatency.Observe(dur.Seconds(), source)
	}
}

func (m *Metrics) ObserveSecondaryRequest(provider, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		provider = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.secondaryRequests.Inc(provider, status)
	if dur > 0 {
		m.secondaryLatency.Observe(dur.Seconds(), provider, status)
	}
	if inputTokens > 0 {
		m.secondaryTokens.Add(float64(inputTokens), provider, "input")
	}
	if outputTokens > 0 {
		m.secondaryTokens.Add(float64(outputTokens), provider, "output")
	}
}

func (m *Metrics) IncSecondaryRejected() {
	if m == nil {
		return
	}
	m.secondaryRejected.Inc()
}

func (m *Metrics) IncArchiveWrite(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.archiveWrites.Inc("ok")
	} else {
		m.archiveWrites.Inc("error")
	}
}

func (m *Metrics) AddPoints(kind string, points int) {
	if m == nil || points <= 0 {
		return
	}
	m.pointsAwarded.Add(float64(points), kind)
}

func (m *Metrics) IncDailyCapHit() {
	if m == nil {
		return
	}
	m.dailyCapHits.Inc()
}

func (m *Metrics) IncAchievementUnlocked(id string) {
	if m == nil {
		return
	}
	m.achievementUnlocks.Inc(id)
}

func (m *Metrics) IncChallengeCompleted(id string) {
	if m == nil {
		return
	}
	m.challengeCompletion.Inc(id)
}

func (m *Metrics) IncLedgerConflict() {
	if m == nil {
		return
	}
	m.ledgerConflicts.Inc()
}

func (m *Metrics) ObserveLeaderboard(dur time.Duration, shared bool) {
	if m == nil {
		return
	}
	if shared {
		m.leaderboardShared.Inc()
		return
	}
	m.leaderboardLatency.Observe(dur.Seconds())
}

func (m *Metrics) ObserveStoreOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.storeOps.Observe(dur.Seconds(), op, status)
}

func (m *Metrics) IncStoreConflict(op string) {
	if m == nil {
		return
	}
	m.storeConflicts.Inc(op)
}

func (m *Metrics) IncStoreRetry(op string) {
	if m == nil {
		return
	}
	m.storeRetries.Inc(op)
}

// StartDBCollector samples the sql.DB pool behind db until ctx is done.
func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

// StartRedisCollector pings rdb on each scrape interval. The caller owns rdb.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StatusLabel renders an HTTP status or a coarse error class for metric labels.
func StatusLabel(code int, err error) string {
	if code > 0 {
		return strconv.Itoa(code)
	}
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
