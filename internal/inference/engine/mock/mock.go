package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/yungbote/recycleright-backend/internal/domain/waste"
	"github.com/yungbote/recycleright-backend/internal/inference/engine"
	"github.com/yungbote/recycleright-backend/internal/inference/imageio"
)

// DefaultLabels mirrors the label file shipped with the on-device model.
var DefaultLabels = []string{
	"plastic_PET", "plastic_HDPE", "plastic_PVC", "plastic_LDPE", "plastic_PP", "plastic_PS",
	"glass", "paper", "cardboard", "metal_aluminum", "metal_steel",
	"organic", "electronic", "batteries", "hazardous",
}

// Engine derives a stable prediction from the image hash. It stands in for a
// real model in development and tests.
type Engine struct {
	labels []string
}

func New(labels []string) *Engine {
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	return &Engine{labels: append([]string(nil), labels...)}
}

func (e *Engine) Name() string { return "mock" }

func (e *Engine) Ready(ctx context.Context) error {
	if len(e.labels) == 0 {
		return engine.ErrModelUnavailable
	}
	return nil
}

func (e *Engine) Close() error { return nil }

func (e *Engine) Infer(ctx context.Context, img []byte) (engine.Prediction, error) {
	if _, err := imageio.Validate(img); err != nil {
		return engine.Prediction{}, err
	}
	h := sha256.Sum256(img)
	scores := make([]waste.Candidate, len(e.labels))
	for i, label := range e.labels {
		u := binary.LittleEndian.Uint32(h[(i*4)%len(h):])
		scores[i] = waste.Candidate{Label: label, Confidence: float64(u%10_000) / 10_000}
	}
	total := 0.0
	for _, s := range scores {
		total += s.Confidence
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Confidence > scores[j].Confidence })

	// Sharpen the top score into [0.30, 0.99] so both sides of common
	// thresholds are reachable.
	top := scores[0]
	conf := 0.30 + 0.69*float64(binary.LittleEndian.Uint16(h[30:]))/65535
	if total > 0 {
		for i := range scores {
			scores[i].Confidence = scores[i].Confidence / total
		}
	}
	scores[0].Confidence = conf
	if len(scores) > 3 {
		scores = scores[:3]
	}
	return engine.Prediction{Label: top.Label, Confidence: conf, Candidates: scores}, nil
}
