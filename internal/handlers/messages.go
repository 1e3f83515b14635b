package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatmirror/chatmirror/internal/model"
)

// ConversationService is the read-side view consumed by the list and
// transcript endpoints.
type ConversationService interface {
	ListSummaries(ctx context.Context) ([]model.ConversationSummary, error)
	Transcript(ctx context.Context, waID string) ([]model.Message, error)
}

// Conversations lists the latest-message summary per wa_id, most
// recent first.
func Conversations(conversations ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		summaries, err := conversations.ListSummaries(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("conversations: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "err": err.Error()})
		}
		return c.JSON(http.StatusOK, summaries)
	}
}

// Messages returns the full transcript for one wa_id, ascending by
// createdAt.
func Messages(conversations ConversationService) echo.HandlerFunc {
	return func(c echo.Context) error {
		waID := c.Param("waID")
		if waID == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "msg": "wa_id param is required"})
		}

		messages, err := conversations.Transcript(c.Request().Context(), waID)
		if err != nil {
			c.Logger().Errorf("messages: fetching %s: %v", waID, err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "err": err.Error()})
		}
		return c.JSON(http.StatusOK, messages)
	}
}

// SendMessage stores an outbound message and notifies subscribers. The
// message is only recorded locally; nothing is delivered to the
// provider network.
func SendMessage(pipeline IngestService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := model.SendMessageParams{}
		if err := c.Bind(&params); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "msg": "invalid request body"})
		}

		message, err := pipeline.Send(c.Request().Context(), params)
		if err != nil {
			if errors.Is(err, model.ErrorValidation) {
				return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "msg": "wa_id and text are required"})
			}
			c.Logger().Errorf("send: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "err": err.Error()})
		}

		return c.JSON(http.StatusCreated, message)
	}
}
