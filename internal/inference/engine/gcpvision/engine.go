package gcpvision

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/recycleright-backend/internal/domain/waste"
	"github.com/yungbote/recycleright-backend/internal/inference/engine"
	"github.com/yungbote/recycleright-backend/internal/inference/imageio"
	"github.com/yungbote/recycleright-backend/internal/platform/gcp"
)

// Matcher reports whether a free-form label maps onto a known category.
type Matcher func(label string) bool

// Engine turns Cloud Vision labels into a primary prediction. Vision labels
// are open-vocabulary, so the best label the taxonomy recognizes wins over a
// higher-scoring label it does not.
type Engine struct {
	detector   gcp.LabelDetector
	match      Matcher
	maxResults int
	topK       int
}

func New(detector gcp.LabelDetector, match Matcher, maxResults int) (*Engine, error) {
	if detector == nil {
		return nil, errors.New("gcpvision: detector required")
	}
	if match == nil {
		match = func(string) bool { return false }
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Engine{detector: detector, match: match, maxResults: maxResults, topK: 3}, nil
}

func (e *Engine) Name() string { return "gcp_vision" }

func (e *Engine) Ready(ctx context.Context) error { return nil }

func (e *Engine) Close() error { return e.detector.Close() }

func (e *Engine) Infer(ctx context.Context, img []byte) (engine.Prediction, error) {
	if _, err := imageio.Validate(img); err != nil {
		return engine.Prediction{}, err
	}
	labels, err := e.detector.DetectLabels(ctx, img, e.maxResults)
	if err != nil {
		if errors.Is(err, gcp.ErrInvalidImage) {
			return engine.Prediction{}, fmt.Errorf("%w: %v", engine.ErrImageUnreadable, err)
		}
		return engine.Prediction{}, err
	}
	if len(labels) == 0 {
		return engine.Prediction{Label: "", Confidence: 0}, nil
	}

	best := -1
	for i, l := range labels {
		if e.match(l.Description) {
			best = i
			break
		}
	}
	if best < 0 {
		best = 0
	}

	cands := make([]waste.Candidate, 0, e.topK)
	cands = append(cands, waste.Candidate{Label: labels[best].Description, Confidence: labels[best].Score})
	for i, l := range labels {
		if len(cands) >= e.topK {
			break
		}
		if i == best {
			continue
		}
		cands = append(cands, waste.Candidate{Label: l.Description, Confidence: l.Score})
	}
	return engine.Prediction{Label: cands[0].Label, Confidence: cands[0].Confidence, Candidates: cands}, nil
}
