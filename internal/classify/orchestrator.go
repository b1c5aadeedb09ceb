package classify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/recycleright-backend/internal/domain/waste"
	"github.com/yungbote/recycleright-backend/internal/guidance"
	"github.com/yungbote/recycleright-backend/internal/inference/engine"
	"github.com/yungbote/recycleright-backend/internal/inference/imageio"
	"github.com/yungbote/recycleright-backend/internal/observability"
	"github.com/yungbote/recycleright-backend/internal/platform/ctxutil"
	"github.com/yungbote/recycleright-backend/internal/platform/httpx"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
	"github.com/yungbote/recycleright-backend/internal/taxonomy"
)

// Inferer is the primary model. engine.Engine satisfies it.
type Inferer interface {
	Infer(ctx context.Context, img []byte) (engine.Prediction, error)
}

// Analysis is what a secondary analyzer reports. An empty Label means it
// could not name a category.
type Analysis struct {
	Label       string
	Confidence  float64
	Description string
}

type Analyzer interface {
	Analyze(ctx context.Context, img []byte) (Analysis, error)
}

// Archiver stores scan images for later review. gcp.ScanArchive satisfies it.
type Archiver interface {
	Put(ctx context.Context, key string, img []byte, meta map[string]string) (string, error)
}

type Config struct {
	// Threshold is the primary confidence below which escalation happens.
	Threshold        float64
	SecondaryTimeout time.Duration
	// SecondaryRetries is clamped to [0,1].
	SecondaryRetries int
	MaxInflight      int64
	ArchiveTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 || c.Threshold > 1 {
		c.Threshold = 0.7
	}
	if c.SecondaryTimeout <= 0 {
		c.SecondaryTimeout = 8 * time.Second
	}
	if c.SecondaryRetries < 0 {
		c.SecondaryRetries = 0
	}
	if c.SecondaryRetries > 1 {
		c.SecondaryRetries = 1
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = 8
	}
	if c.ArchiveTimeout <= 0 {
		c.ArchiveTimeout = 5 * time.Second
	}
	return c
}

type Orchestrator struct {
	log      *logger.Logger
	cfg      Config
	tax      *taxonomy.Taxonomy
	guide    *guidance.Resolver
	primary  Inferer
	analyzer Analyzer
	archive  Archiver
	quota    *semaphore.Weighted
}

// New wires an orchestrator. analyzer and archive may be nil.
func New(log *logger.Logger, cfg Config, tax *taxonomy.Taxonomy, guide *guidance.Resolver, primary Inferer, analyzer Analyzer, archive Archiver) (*Orchestrator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if tax == nil || guide == nil {
		return nil, fmt.Errorf("taxonomy and guidance resolver required")
	}
	if primary == nil {
		return nil, fmt.Errorf("primary engine required")
	}
	cfg = cfg.withDefaults()
	return &Orchestrator{
		log:      log.With("service", "ClassifyOrchestrator"),
		cfg:      cfg,
		tax:      tax,
		guide:    guide,
		primary:  primary,
		analyzer: analyzer,
		archive:  archive,
		quota:    semaphore.NewWeighted(cfg.MaxInflight),
	}, nil
}

func (o *Orchestrator) Threshold() float64 { return o.cfg.Threshold }

func (o *Orchestrator) Classify(ctx context.Context, img []byte) (waste.ClassificationResult, error) {
	return o.ClassifyInRegion(ctx, img, "")
}

// ClassifyInRegion runs primary inference, escalates low-confidence results to
// the secondary analyzer and attaches guidance for region.
func (o *Orchestrator) ClassifyInRegion(ctx context.Context, img []byte, region string) (waste.ClassificationResult, error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "classify.Classify")
	defer span.End()
	log := o.log.With(ctxutil.LogFields(ctx)...)
	metrics := observability.Current()

	info, err := imageio.Validate(img)
	if err != nil {
		span.SetStatus(codes.Error, "image unreadable")
		metrics.ObserveClassification("", "error", 0)
		return waste.ClassificationResult{}, err
	}
	span.SetAttributes(
		attribute.String("image.format", info.Format),
		attribute.Int("image.width", info.Width),
		attribute.Int("image.height", info.Height),
	)

	pred, err := o.runPrimary(ctx, img)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "primary inference failed")
		metrics.ObserveClassification("", "error", 0)
		if errors.Is(err, ErrImageUnreadable) {
			return waste.ClassificationResult{}, err
		}
		return waste.ClassificationResult{}, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
	primaryConf := clamp01(pred.Confidence)
	cat := o.tax.Normalize(pred.Label)

	res := waste.ClassificationResult{
		Source:            waste.SourcePrimary,
		Confidence:        primaryConf,
		PrimaryLabel:      pred.Label,
		PrimaryConfidence: primaryConf,
		Alternatives:      append([]waste.Candidate(nil), pred.Candidates...),
	}
	outcome := "primary"
	escalated := false

	if primaryConf < o.cfg.Threshold {
		escalated = true
		a, aerr := o.escalate(ctx, img)
		secCat := o.tax.Normalize(a.Label)
		switch {
		case aerr != nil:
			log.Warn("secondary analysis failed; using primary result",
				"error", aerr, "primary_label", pred.Label, "primary_confidence", primaryConf)
			res.LowConfidence = true
			outcome = "fallback"
		case secCat.ID == taxonomy.Unclassified:
			log.Info("secondary analysis returned no usable category; using primary result",
				"secondary_label", a.Label, "primary_label", pred.Label)
			res.LowConfidence = true
			outcome = "fallback"
		default:
			cat = secCat
			res.Source = waste.SourceSecondary
			if a.Confidence > 0 && a.Confidence <= 1 {
				res.Confidence = a.Confidence
			}
			res.Description = strings.TrimSpace(a.Description)
			outcome = "secondary"
		}
	}

	g, err := o.guide.ResolveRegion(cat.ID, region)
	if err != nil {
		// Normalize only returns taxonomy members, so this is a wiring bug.
		span.RecordError(err)
		metrics.ObserveClassification(string(res.Source), "error", 0)
		return waste.ClassificationResult{}, fmt.Errorf("classify: resolve guidance: %w", err)
	}
	res.Category = cat.ID
	res.Name = cat.Name
	res.Material = cat.Material
	res.Recyclable = g.Recyclable
	res.DisposalMethod = g.DisposalMethod
	res.Guidance = g.Instructions
	res.SpecialHandling = g.SpecialHandling
	res.Region = g.Region

	if escalated {
		o.archiveScan(ctx, img, res)
	}

	span.SetAttributes(
		attribute.String("classify.category", res.Category),
		attribute.String("classify.source", string(res.Source)),
		attribute.Float64("classify.confidence", res.Confidence),
		attribute.Bool("classify.low_confidence", res.LowConfidence),
	)
	metrics.ObserveClassification(string(res.Source), outcome, time.Since(start))
	log.Debug("classification complete",
		"category", res.Category,
		"source", res.Source,
		"confidence", res.Confidence,
		"low_confidence", res.LowConfidence,
	)
	return res, nil
}

func (o *Orchestrator) runPrimary(ctx context.Context, img []byte) (engine.Prediction, error) {
	ctx, span := observability.Tracer().Start(ctx, "classify.primary")
	defer span.End()
	pred, err := o.primary.Infer(ctx, img)
	if err != nil {
		span.RecordError(err)
		return engine.Prediction{}, err
	}
	span.SetAttributes(attribute.String("primary.label", pred.Label), attribute.Float64("primary.confidence", pred.Confidence))
	return pred, nil
}

// escalate acquires a quota slot without waiting and makes at most
// 1+SecondaryRetries attempts, each under its own timeout.
func (o *Orchestrator) escalate(ctx context.Context, img []byte) (Analysis, error) {
	if o.analyzer == nil {
		return Analysis{}, fmt.Errorf("%w: no analyzer configured", ErrSecondaryUnavailable)
	}
	ctx, span := observability.Tracer().Start(ctx, "classify.secondary")
	defer span.End()

	if !o.quota.TryAcquire(1) {
		observability.Current().IncSecondaryRejected()
		span.SetStatus(codes.Error, "quota exhausted")
		return Analysis{}, fmt.Errorf("%w: in-flight quota exhausted", ErrSecondaryUnavailable)
	}
	defer o.quota.Release(1)

	attempts := 1 + o.cfg.SecondaryRetries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		a, err := o.analyzeOnce(ctx, img)
		if err == nil {
			span.SetAttributes(attribute.Int("secondary.attempts", attempt), attribute.String("secondary.label", a.Label))
			return a, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "secondary failed")
	return Analysis{}, fmt.Errorf("%w: %v", ErrSecondaryUnavailable, lastErr)
}

func (o *Orchestrator) analyzeOnce(ctx context.Context, img []byte) (Analysis, error) {
	actx, cancel := context.WithTimeout(ctx, o.cfg.SecondaryTimeout)
	defer cancel()
	return o.analyzer.Analyze(actx, img)
}

func retryable(err error) bool {
	if errors.Is(err, ErrMalformedAnalysis) {
		return true
	}
	return httpx.IsRetryableError(err)
}

func (o *Orchestrator) archiveScan(ctx context.Context, img []byte, res waste.ClassificationResult) {
	if o.archive == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ArchiveTimeout)
	defer cancel()
	key := time.Now().UTC().Format("2006/01/02/") + uuid.NewString()
	meta := map[string]string{
		"category":           res.Category,
		"source":             string(res.Source),
		"confidence":         strconv.FormatFloat(res.Confidence, 'f', 4, 64),
		"primary_label":      res.PrimaryLabel,
		"primary_confidence": strconv.FormatFloat(res.PrimaryConfidence, 'f', 4, 64),
		"low_confidence":     strconv.FormatBool(res.LowConfidence),
	}
	uri, err := o.archive.Put(actx, key, img, meta)
	observability.Current().IncArchiveWrite(err == nil)
	if err != nil {
		o.log.Warn("scan archive upload failed", "error", err)
		return
	}
	o.log.Debug("scan archived", "uri", uri)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
