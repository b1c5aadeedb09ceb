package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/recycleright-backend/internal/guidance"
	"github.com/yungbote/recycleright-backend/internal/http/response"
	"github.com/yungbote/recycleright-backend/internal/taxonomy"
)

type GuidanceHandler struct {
	resolver *guidance.Resolver
	tax      *taxonomy.Taxonomy
}

func NewGuidanceHandler(resolver *guidance.Resolver, tax *taxonomy.Taxonomy) *GuidanceHandler {
	return &GuidanceHandler{resolver: resolver, tax: tax}
}

// GET /api/guidance/:category?region=
func (h *GuidanceHandler) GetGuidance(c *gin.Context) {
	g, err := h.resolver.ResolveRegion(c.Param("category"), c.Query("region"))
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, gin.H{"guidance": g})
}

// GET /api/categories
func (h *GuidanceHandler) ListCategories(c *gin.Context) {
	type category struct {
		ID             string `json:"id"`
		Name           string `json:"name"`
		Material       string `json:"material"`
		Recyclable     bool   `json:"recyclable"`
		DisposalMethod string `json:"disposal_method"`
	}
	cats := h.tax.Categories()
	out := make([]category, 0, len(cats))
	for _, cat := range cats {
		out = append(out, category{
			ID:             cat.ID,
			Name:           cat.Name,
			Material:       cat.Material,
			Recyclable:     cat.Recyclable,
			DisposalMethod: cat.DisposalMethod,
		})
	}
	response.RespondOK(c, gin.H{"categories": out})
}
