package classify

import (
	"errors"

	"github.com/yungbote/recycleright-backend/internal/inference/engine"
)

var (
	// ErrImageUnreadable is returned for payloads that are not a decodable image.
	ErrImageUnreadable = engine.ErrImageUnreadable
	// ErrModelUnavailable is raised at startup when the primary engine is not ready.
	ErrModelUnavailable = engine.ErrModelUnavailable
	// ErrInferenceFailed wraps any other primary engine failure.
	ErrInferenceFailed = errors.New("primary inference failed")
	// ErrSecondaryUnavailable covers every secondary failure: timeout, quota,
	// transport and unparsable replies. It never reaches callers of Classify.
	ErrSecondaryUnavailable = errors.New("secondary analyzer unavailable")
)
