package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatmirror/chatmirror/internal/ingest"
	"github.com/chatmirror/chatmirror/internal/model"
)

// IngestService is the slice of the pipeline the webhook boundary uses.
type IngestService interface {
	Ingest(ctx context.Context, raw []byte) (ingest.Outcome, error)
	Send(ctx context.Context, params model.SendMessageParams) (*model.Message, error)
}

// Webhook accepts a provider callback envelope, runs it through the
// ingestion pipeline and reports the number of persisted effects.
func Webhook(pipeline IngestService) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := c.Request().Body
		defer body.Close()

		raw, err := io.ReadAll(body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "reading request body")
		}

		outcome, err := pipeline.Ingest(c.Request().Context(), raw)
		if err != nil {
			var rejected *model.UnrecognizedPayloadError
			if errors.As(err, &rejected) {
				return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "msg": rejected.Reason})
			}
			c.Logger().Errorf("webhook: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "err": err.Error()})
		}

		return c.JSON(http.StatusCreated, echo.Map{"ok": true, "inserted": outcome.Inserted, "updated": outcome.Updated})
	}
}
