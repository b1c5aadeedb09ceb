package engine

import (
	"context"
	"errors"

	"github.com/yungbote/recycleright-backend/internal/domain/waste"
	"github.com/yungbote/recycleright-backend/internal/inference/imageio"
)

var (
	// ErrModelUnavailable means the backend or its model is missing. Only
	// returned from Ready, which runs during process start.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrImageUnreadable is returned by Infer for input that cannot be decoded.
	ErrImageUnreadable = imageio.ErrUnreadable
)

// Prediction is the top label an engine produced plus its ranked alternatives.
type Prediction struct {
	Label      string
	Confidence float64
	Candidates []waste.Candidate
}

// Engine is a primary image classifier. Infer must be deterministic for a
// fixed image and fixed model weights.
type Engine interface {
	Name() string
	Ready(ctx context.Context) error
	Infer(ctx context.Context, img []byte) (Prediction, error)
	Close() error
}
