package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetBalance looks up a Flow account balance; without an address it uses the default account.
// GET /api/flow/balance/:address
// GET /api/flow/balance
func (h *Handler) GetBalance(c echo.Context) error {
	bal, err := h.service.Balance(c.Request().Context(), c.Param("address"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, bal)
}
