package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/yungbote/recycleright-backend/internal/classify"
	"github.com/yungbote/recycleright-backend/internal/guidance"
	"github.com/yungbote/recycleright-backend/internal/leaderboard"
	"github.com/yungbote/recycleright-backend/internal/ledger"
	"github.com/yungbote/recycleright-backend/internal/platform/apierr"
)

// toAPIError assigns an HTTP status and code to a domain error.
func toAPIError(err error) error {
	var ae *apierr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, classify.ErrImageUnreadable):
		return apierr.New(http.StatusUnprocessableEntity, "image_unreadable", err)
	case errors.Is(err, ledger.ErrUnknownCategory):
		return apierr.BadRequest("unknown_category", err)
	case errors.Is(err, ledger.ErrInvalidArgument):
		return apierr.BadRequest("validation", err)
	case errors.Is(err, guidance.ErrUnknownCategory):
		return apierr.NotFound("unknown_category", err)
	case errors.Is(err, ledger.ErrUserNotFound), errors.Is(err, leaderboard.ErrUserNotFound):
		return apierr.NotFound("user_not_found", err)
	case errors.Is(err, ledger.ErrUserExists):
		return apierr.New(http.StatusConflict, "user_exists", err)
	case errors.Is(err, classify.ErrInferenceFailed),
		errors.Is(err, classify.ErrModelUnavailable),
		errors.Is(err, ledger.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return apierr.New(http.StatusServiceUnavailable, "dependency_unavailable", err)
	}
	return apierr.New(http.StatusInternalServerError, "internal", err)
}
