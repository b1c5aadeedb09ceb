package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recycleright-backend/internal/domain/gamification"
	"github.com/yungbote/recycleright-backend/internal/domain/waste"
	"github.com/yungbote/recycleright-backend/internal/http/response"
	"github.com/yungbote/recycleright-backend/internal/leaderboard"
	"github.com/yungbote/recycleright-backend/internal/ledger"
	"github.com/yungbote/recycleright-backend/internal/platform/apierr"
)

type Ledger interface {
	RegisterUser(ctx context.Context, userID string) (*gamification.UserProgress, error)
	Progress(ctx context.Context, userID string) (ledger.Stats, error)
	Events(ctx context.Context, userID string, limit int) ([]gamification.DisposalEvent, error)
	ConfirmDisposal(ctx context.Context, req ledger.ConfirmRequest) (ledger.ConfirmResult, error)
	Adjust(ctx context.Context, userID string, delta int, reason string) (ledger.AdjustResult, error)
}

type Ranker interface {
	Rank(ctx context.Context, userID string) (leaderboard.RankInfo, error)
	Top(ctx context.Context, limit int) ([]leaderboard.Entry, error)
}

type UserHandler struct {
	ledger Ledger
	board  Ranker
}

func NewUserHandler(l Ledger, board Ranker) *UserHandler {
	return &UserHandler{ledger: l, board: board}
}

// POST /api/users
// body: { "user_id": "..." }
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_request", err))
		return
	}
	p, err := h.ledger.RegisterUser(c.Request.Context(), req.UserID)
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondCreated(c, gin.H{"progress": p})
}

// GET /api/users/:id/progress
func (h *UserHandler) GetProgress(c *gin.Context) {
	st, err := h.ledger.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, gin.H{"progress": st})
}

// GET /api/users/:id/events?limit=
func (h *UserHandler) ListEvents(c *gin.Context) {
	limit, err := queryLimit(c, 0)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	evs, err := h.ledger.Events(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, gin.H{"events": evs})
}

type confirmDisposalRequest struct {
	Category   string   `json:"category"`
	Confidence *float64 `json:"confidence"`
	Source     string   `json:"source"`
}

// POST /api/users/:id/disposals
// body: { "category": "glass_bottle", "confidence": 0.93, "source": "primary" }
func (h *UserHandler) ConfirmDisposal(c *gin.Context) {
	var req confirmDisposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_request", err))
		return
	}
	if strings.TrimSpace(req.Category) == "" || req.Confidence == nil {
		response.RespondAPIError(c, apierr.BadRequest("validation", fmt.Errorf("category and confidence are required")))
		return
	}
	res, err := h.ledger.ConfirmDisposal(c.Request.Context(), ledger.ConfirmRequest{
		UserID:     c.Param("id"),
		Category:   strings.TrimSpace(req.Category),
		Confidence: *req.Confidence,
		Source:     waste.Source(strings.ToLower(strings.TrimSpace(req.Source))),
	})
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, res)
}

// GET /api/users/:id/rank
func (h *UserHandler) GetRank(c *gin.Context) {
	info, err := h.board.Rank(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, info)
}

// GET /api/leaderboard?limit=
func (h *UserHandler) Leaderboard(c *gin.Context) {
	limit, err := queryLimit(c, leaderboard.DefaultLimit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	top, err := h.board.Top(c.Request.Context(), limit)
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, gin.H{"leaderboard": top})
}

// POST /api/admin/users/:id/adjustments
// body: { "delta": -50, "reason": "duplicate scans" }
func (h *UserHandler) Adjust(c *gin.Context) {
	var req struct {
		Delta  int    `json:"delta"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_request", err))
		return
	}
	res, err := h.ledger.Adjust(c.Request.Context(), c.Param("id"), req.Delta, req.Reason)
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, res)
}

func queryLimit(c *gin.Context, def int) (int, error) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apierr.BadRequest("validation", fmt.Errorf("limit must be a non-negative integer"))
	}
	return n, nil
}
