package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
	"aura.dev/aura/internal/query"
)

// HistoryResponse lists every stored version of one item's fact.
type HistoryResponse struct {
	ItemID   string        `json:"item_id"`
	Versions []domain.Fact `json:"versions"`
}

// FactList wraps a list of facts.
type FactList struct {
	Items []domain.Fact `json:"items"`
}

// ResponseList wraps a list of gated responses.
type ResponseList struct {
	Items []query.Response `json:"items"`
}

func itemParam(c *gin.Context) (string, bool) {
	itemID := domain.NormalizeItemID(c.Param("item_id"))
	if itemID == "" {
		_ = c.Error(apperrors.ErrInvalidRequestFieldf("item_id"))
		return "", false
	}
	return itemID, true
}

// Ask handles GET /items/{item_id}/ask. Every gate outcome, BLOCKED
// included, is a 200; callers read the status field.
func (s *Server) Ask(c *gin.Context) {
	itemID, ok := itemParam(c)
	if !ok {
		return
	}
	resp, err := s.query.Ask(c.Request.Context(), itemID, c.Query("question"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetHistory handles GET /items/{item_id}/history, oldest version first.
func (s *Server) GetHistory(c *gin.Context) {
	itemID, ok := itemParam(c)
	if !ok {
		return
	}
	versions, err := s.facts.History(c.Request.Context(), itemID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if len(versions) == 0 {
		_ = c.Error(apperrors.ErrFactNotFoundf(itemID))
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{ItemID: itemID, Versions: versions})
}

// ListLowStock handles GET /items/low-stock.
func (s *Server) ListLowStock(c *gin.Context) {
	facts, err := s.query.LowStockItems(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if facts == nil {
		facts = []domain.Fact{}
	}
	c.JSON(http.StatusOK, FactList{Items: facts})
}

// ListWarnings handles GET /items/warnings.
func (s *Server) ListWarnings(c *gin.Context) {
	items, err := s.query.ItemsWithWarnings(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if items == nil {
		items = []query.Response{}
	}
	c.JSON(http.StatusOK, ResponseList{Items: items})
}
