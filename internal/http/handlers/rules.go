package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recycleright-backend/internal/achievement"
	"github.com/yungbote/recycleright-backend/internal/http/response"
)

type RulesHandler struct {
	engine *achievement.Engine
	now    func() time.Time
}

func NewRulesHandler(engine *achievement.Engine, now func() time.Time) *RulesHandler {
	if now == nil {
		now = time.Now
	}
	return &RulesHandler{engine: engine, now: now}
}

// GET /api/achievements
func (h *RulesHandler) ListAchievements(c *gin.Context) {
	response.RespondOK(c, gin.H{"achievements": h.engine.Rules().Achievements})
}

type challengeView struct {
	achievement.Challenge
	Active      bool       `json:"active"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
}

// GET /api/challenges
func (h *RulesHandler) ListChallenges(c *gin.Context) {
	now := h.now()
	chs := h.engine.Rules().Challenges
	out := make([]challengeView, 0, len(chs))
	for _, ch := range chs {
		v := challengeView{Challenge: ch}
		if _, start, end, ok := ch.Instance(now, h.engine.Location()); ok {
			v.Active = true
			v.WindowStart, v.WindowEnd = &start, &end
		}
		out = append(out, v)
	}
	response.RespondOK(c, gin.H{"challenges": out})
}
