package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/embedcore/ai/core/retrieval"
	"github.com/hrygo/embedcore/internal/errs"
	"github.com/hrygo/embedcore/internal/result"
)

const maxTopK = 100

type upsertEmbeddingRequest struct {
	ItemType string `json:"item_type"`
	ItemID   string `json:"item_id"`
	Text     string `json:"text"`
}

type upsertEmbeddingResponse struct {
	Reason  string `json:"reason,omitempty"`
	Success bool   `json:"success"`
}

type searchEmbeddingsResponse struct {
	Matches []retrieval.Match `json:"matches"`
}

// UpsertEmbedding stores the unobfuscated embedding of an item.
func (s *APIV1Service) UpsertEmbedding(c echo.Context) error {
	var req upsertEmbeddingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	outcome := s.Facade.Upsert(c.Request().Context(), req.ItemType, req.ItemID, req.Text)
	if outcome.Status == result.StatusFailed {
		return httpError(c, outcome.Err)
	}
	return c.JSON(http.StatusOK, upsertEmbeddingResponse{Success: outcome.OK(), Reason: outcome.Reason})
}

// SearchEmbeddings returns stored items similar to the q parameter.
func (s *APIV1Service) SearchEmbeddings(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}

	topK := retrieval.DefaultTopK
	if raw := c.QueryParam("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxTopK {
			return echo.NewHTTPError(http.StatusBadRequest, "top_k must be between 1 and 100")
		}
		topK = n
	}

	matches, err := s.Facade.SearchText(c.Request().Context(), query, topK)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, searchEmbeddingsResponse{Matches: matches})
}

// DeleteEmbedding removes an item from storage and the vector index.
func (s *APIV1Service) DeleteEmbedding(c echo.Context) error {
	deleted, err := s.Facade.Delete(c.Request().Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	if !deleted {
		return httpError(c, errs.ErrNotFound)
	}
	return c.JSON(http.StatusOK, map[string]bool{"deleted": true})
}
