package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Health(c.Request().Context()))
}

// SDKStatus reports whether the SDK backend can serve chats.
func (h *Handler) SDKStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.SDKStatus(c.Request().Context()))
}
