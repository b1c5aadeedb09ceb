package classify

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/recycleright-backend/internal/domain/waste"
	"github.com/yungbote/recycleright-backend/internal/guidance"
	"github.com/yungbote/recycleright-backend/internal/inference/engine"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
	"github.com/yungbote/recycleright-backend/internal/taxonomy"
)

type fakeInferer struct {
	pred engine.Prediction
	err  error
}

func (f fakeInferer) Infer(ctx context.Context, img []byte) (engine.Prediction, error) {
	return f.pred, f.err
}

type fakeAnalyzer struct {
	mu      sync.Mutex
	calls   int
	results []Analysis
	errs    []error
	block   chan struct{}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, img []byte) (Analysis, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Analysis{}, ctx.Err()
		}
	}
	var a Analysis
	var err error
	if i < len(f.results) {
		a = f.results[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return a, err
}

func (f *fakeAnalyzer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeArchive struct {
	puts atomic.Int32
	err  error
}

func (f *fakeArchive) Put(ctx context.Context, key string, img []byte, meta map[string]string) (string, error) {
	f.puts.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("archive called without deadline")
	}
	return "gs://bucket/" + key, f.err
}

func testImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newOrchestrator(t *testing.T, cfg Config, inf Inferer, an Analyzer, ar Archiver) *Orchestrator {
	t.Helper()
	tax, err := taxonomy.Default()
	if err != nil {
		t.Fatalf("taxonomy: %v", err)
	}
	o, err := New(logger.Nop(), cfg, tax, guidance.NewResolver(tax, ""), inf, an, ar)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestHighConfidenceNeverEscalates(t *testing.T) {
	an := &fakeAnalyzer{results: []Analysis{{Label: "paper", Confidence: 0.99}}}
	inf := fakeInferer{pred: engine.Prediction{Label: "plastic_PET", Confidence: 0.92,
		Candidates: []waste.Candidate{{Label: "plastic_PET", Confidence: 0.92}, {Label: "glass", Confidence: 0.05}}}}
	o := newOrchestrator(t, Config{Threshold: 0.7}, inf, an, nil)

	res, err := o.Classify(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if an.count() != 0 {
		t.Fatalf("secondary invoked %d times", an.count())
	}
	want := waste.ClassificationResult{
		Category:          "plastic_bottle",
		Name:              res.Name,
		Material:          "plastic",
		Confidence:        0.92,
		Source:            waste.SourcePrimary,
		Recyclable:        true,
		DisposalMethod:    "recycle",
		Guidance:          res.Guidance,
		SpecialHandling:   res.SpecialHandling,
		Region:            "default",
		PrimaryLabel:      "plastic_PET",
		PrimaryConfidence: 0.92,
		Alternatives:      inf.pred.Candidates,
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	if len(res.Guidance) == 0 {
		t.Fatalf("guidance missing")
	}
}

func TestThresholdBoundaryIsNotEscalated(t *testing.T) {
	an := &fakeAnalyzer{}
	o := newOrchestrator(t, Config{Threshold: 0.7}, fakeInferer{pred: engine.Prediction{Label: "glass", Confidence: 0.7}}, an, nil)
	if _, err := o.Classify(context.Background(), testImage(t)); err != nil {
		t.Fatal(err)
	}
	if an.count() != 0 {
		t.Fatalf("confidence == threshold must not escalate")
	}
}

func TestLowConfidenceUsesSecondary(t *testing.T) {
	an := &fakeAnalyzer{results: []Analysis{{Label: "Glass Bottle", Confidence: 0.88, Description: "A green wine bottle."}}}
	ar := &fakeArchive{}
	o := newOrchestrator(t, Config{Threshold: 0.7}, fakeInferer{pred: engine.Prediction{Label: "plastic_PET", Confidence: 0.4}}, an, ar)

	res, err := o.ClassifyInRegion(context.Background(), testImage(t), "urban")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Source != waste.SourceSecondary || res.Category != "glass_bottle" || res.LowConfidence {
		t.Fatalf("res=%+v", res)
	}
	if res.Confidence != 0.88 || res.PrimaryConfidence != 0.4 || res.PrimaryLabel != "plastic_PET" {
		t.Fatalf("confidences: %+v", res)
	}
	if res.Region != "urban" || res.Description == "" {
		t.Fatalf("region=%q description=%q", res.Region, res.Description)
	}
	if ar.puts.Load() != 1 {
		t.Fatalf("escalated scan should be archived once, got %d", ar.puts.Load())
	}
}

func TestSecondaryWithoutConfidenceKeepsPrimaryConfidence(t *testing.T) {
	an := &fakeAnalyzer{results: []Analysis{{Label: "cardboard"}}}
	o := newOrchestrator(t, Config{}, fakeInferer{pred: engine.Prediction{Label: "paper", Confidence: 0.5}}, an, nil)
	res, err := o.Classify(context.Background(), testImage(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != waste.SourceSecondary || res.Confidence != 0.5 {
		t.Fatalf("res=%+v", res)
	}
}

func TestSecondaryFailureFallsBack(t *testing.T) {
	cases := []struct {
		name      string
		analyzer  *fakeAnalyzer
		wantCalls int
	}{
		{"timeout then timeout", &fakeAnalyzer{errs: []error{context.DeadlineExceeded, context.DeadlineExceeded}}, 2},
		{"non-retryable", &fakeAnalyzer{errs: []error{errors.New("auth failed")}}, 1},
		{"no usable category", &fakeAnalyzer{results: []Analysis{{Label: ""}}}, 1},
		{"unknown category", &fakeAnalyzer{results: []Analysis{{Label: "spaceship", Confidence: 0.9}}}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := newOrchestrator(t, Config{SecondaryRetries: 1}, fakeInferer{pred: engine.Prediction{Label: "metal", Confidence: 0.3}}, tc.analyzer, nil)
			res, err := o.Classify(context.Background(), testImage(t))
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if res.Source != waste.SourcePrimary || !res.LowConfidence || res.Category != "metal_can" || res.Confidence != 0.3 {
				t.Fatalf("res=%+v", res)
			}
			if got := tc.analyzer.count(); got != tc.wantCalls {
				t.Fatalf("calls=%d want %d", got, tc.wantCalls)
			}
		})
	}
}

func TestRetryRecoversOnce(t *testing.T) {
	an := &fakeAnalyzer{
		errs:    []error{context.DeadlineExceeded, nil},
		results: []Analysis{{}, {Label: "batteries", Confidence: 0.8}},
	}
	o := newOrchestrator(t, Config{SecondaryRetries: 5}, fakeInferer{pred: engine.Prediction{Label: "electronic", Confidence: 0.2}}, an, nil)
	res, err := o.Classify(context.Background(), testImage(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Category != "batteries" || an.count() != 2 {
		t.Fatalf("category=%s calls=%d", res.Category, an.count())
	}
}

func TestSecondaryTimeoutIsBounded(t *testing.T) {
	an := &fakeAnalyzer{block: make(chan struct{})}
	o := newOrchestrator(t, Config{SecondaryTimeout: 20 * time.Millisecond, SecondaryRetries: 0},
		fakeInferer{pred: engine.Prediction{Label: "paper", Confidence: 0.1}}, an, nil)
	start := time.Now()
	res, err := o.Classify(context.Background(), testImage(t))
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("escalation not bounded: %v", time.Since(start))
	}
	if !res.LowConfidence || res.Category != "paper" {
		t.Fatalf("res=%+v", res)
	}
}

func TestQuotaExhaustionFallsBack(t *testing.T) {
	an := &fakeAnalyzer{results: []Analysis{{Label: "paper", Confidence: 0.9}}}
	o := newOrchestrator(t, Config{MaxInflight: 1}, fakeInferer{pred: engine.Prediction{Label: "cardboard", Confidence: 0.2}}, an, nil)
	if !o.quota.TryAcquire(1) {
		t.Fatal("could not take quota")
	}
	defer o.quota.Release(1)
	res, err := o.Classify(context.Background(), testImage(t))
	if err != nil {
		t.Fatal(err)
	}
	if !res.LowConfidence || an.count() != 0 {
		t.Fatalf("res=%+v calls=%d", res, an.count())
	}
}

func TestNoAnalyzerFlagsLowConfidence(t *testing.T) {
	o := newOrchestrator(t, Config{}, fakeInferer{pred: engine.Prediction{Label: "", Confidence: math.NaN()}}, nil, nil)
	res, err := o.Classify(context.Background(), testImage(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Category != taxonomy.Unclassified || res.Recyclable || res.Confidence != 0 || !res.LowConfidence {
		t.Fatalf("res=%+v", res)
	}
}

func TestConfidenceIsClamped(t *testing.T) {
	o := newOrchestrator(t, Config{}, fakeInferer{pred: engine.Prediction{Label: "paper", Confidence: 1.7}}, nil, nil)
	res, err := o.Classify(context.Background(), testImage(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Confidence != 1 {
		t.Fatalf("confidence=%v", res.Confidence)
	}
}

func TestErrors(t *testing.T) {
	o := newOrchestrator(t, Config{}, fakeInferer{err: errors.New("grpc unavailable")}, nil, nil)
	if _, err := o.Classify(context.Background(), []byte("not an image")); !errors.Is(err, ErrImageUnreadable) {
		t.Fatalf("err=%v", err)
	}
	if _, err := o.Classify(context.Background(), testImage(t)); !errors.Is(err, ErrInferenceFailed) {
		t.Fatalf("err=%v", err)
	}
	o = newOrchestrator(t, Config{}, fakeInferer{err: engine.ErrImageUnreadable}, nil, nil)
	if _, err := o.Classify(context.Background(), testImage(t)); !errors.Is(err, ErrImageUnreadable) {
		t.Fatalf("err=%v", err)
	}
}

func TestArchiveFailureDoesNotAffectResult(t *testing.T) {
	ar := &fakeArchive{err: errors.New("bucket gone")}
	o := newOrchestrator(t, Config{}, fakeInferer{pred: engine.Prediction{Label: "glass", Confidence: 0.1}}, nil, ar)
	res, err := o.Classify(context.Background(), testImage(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Category != "glass_bottle" || ar.puts.Load() != 1 {
		t.Fatalf("res=%+v puts=%d", res, ar.puts.Load())
	}
}

func TestPrimaryIsDeterministic(t *testing.T) {
	o := newOrchestrator(t, Config{Threshold: 0.01}, fakeInferer{pred: engine.Prediction{Label: "plastic_HDPE", Confidence: 0.6}}, nil, nil)
	img := testImage(t)
	a, _ := o.Classify(context.Background(), img)
	b, _ := o.Classify(context.Background(), img)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("non-deterministic:\n%s", diff)
	}
}
