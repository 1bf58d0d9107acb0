package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/embedcore/ai/pipeline"
	"github.com/hrygo/embedcore/internal/errs"
	"github.com/hrygo/embedcore/internal/result"
)

type processMessageRequest struct {
	SessionID string `json:"session_id"`
	Platform  string `json:"platform"`
	Text      string `json:"text"`
	ItemType  string `json:"item_type"`
	ItemID    string `json:"item_id"`
}

// ProcessMessage runs the caller's message through the pipeline.
// The user id always comes from the access token.
func (s *APIV1Service) ProcessMessage(c echo.Context) error {
	var req processMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res := s.Pipeline.ProcessMessage(c.Request().Context(), pipeline.Message{
		UserID:    currentUserID(c),
		SessionID: req.SessionID,
		Platform:  req.Platform,
		Text:      req.Text,
		ItemType:  req.ItemType,
		ItemID:    req.ItemID,
	})
	return c.JSON(resultStatus(res), res)
}

func resultStatus(res *pipeline.Result) int {
	if res.Status != result.StatusFailed {
		return http.StatusOK
	}
	switch res.ErrorKind {
	case errs.KindInvalidArgument.String(), errs.KindInvalidInput.String():
		return http.StatusBadRequest
	case errs.KindCircuitOpen.String():
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
