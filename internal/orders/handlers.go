package orders

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/ledger"
	"github.com/sudo-init-do/bundlehub/internal/utils"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// CreateOrderRequest is the buyer's purchase. Amount is in minor units.
type CreateOrderRequest struct {
	Carrier     string `json:"network" validate:"required"`
	PackageID   string `json:"package_id" validate:"required"`
	PackageName string `json:"package_name"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	PhoneNumber string `json:"phone_number" validate:"required"`
}

// CreateOrder - buyer pays for a bundle from the wallet
func (h *Handler) CreateOrder(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing required fields"})
	}
	email, _ := c.Get("email").(string)

	placed, err := h.svc.PlaceOrder(c.Request().Context(), PlaceOrderRequest{
		UserID:      userID,
		Email:       email,
		Carrier:     req.Carrier,
		PackageID:   req.PackageID,
		PackageName: req.PackageName,
		Amount:      req.Amount,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Order created successfully",
		"data":    placed,
	})
}

// MyOrders lists the caller's orders, newest first
func (h *Handler) MyOrders(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orders, err := h.svc.UserOrders(c.Request().Context(), userID)
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}
	if orders == nil {
		orders = []ledger.Order{}
	}
	return c.JSON(http.StatusOK, echo.Map{"data": orders})
}

type StatusRequest struct {
	Status ledger.OrderStatus `json:"status" validate:"required,oneof=processing completed failed"`
}

// UpdateStatus - admin fulfillment update; failed refunds the buyer
func (h *Handler) UpdateStatus(c echo.Context) error {
	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id in URL"})
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be processing, completed or failed"})
	}

	o, err := h.svc.UpdateStatus(c.Request().Context(), orderID, req.Status)
	if err != nil {
		return utils.ErrorJSON(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "order status updated", "data": o})
}
