package order

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/fulfillment/internal/domain/prescription"
	"github.com/ehr/fulfillment/internal/domain/provider"
	"github.com/ehr/fulfillment/pkg/pagination"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/orders", h.CreateOrder)
	api.GET("/orders", h.ListOrders)
	api.GET("/orders/:id", h.GetOrder)
	api.GET("/orders/:id/snapshot", h.GetOrderSnapshot)
	api.POST("/orders/:id/advance", h.AdvanceOrder)
	api.POST("/orders/:id/cancel", h.CancelOrder)
	api.POST("/orders/:id/refund", h.RefundOrder)
	api.POST("/orders/:id/authorize", h.AuthorizePrescription)
}

func actor(c echo.Context) string {
	if v := c.Request().Header.Get("X-Actor-ID"); v != "" {
		return v
	}
	return "system"
}

type createOrderRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	ProductID uuid.UUID `json:"product_id"`
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == uuid.Nil || req.ProductID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id and product_id are required")
	}
	o, err := h.service.CreateOrder(c.Request().Context(), req.PatientID, req.ProductID, actor(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := h.service.GetOrder(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) GetOrderSnapshot(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	snap, err := h.service.GetOrderSnapshot(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) ListOrders(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, key := range []string{"patient_id", "product_id", "status", "classification"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}
	items, total, err := h.service.ListOrders(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type transitionRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) AdvanceOrder(c echo.Context) error {
	return h.transition(c, h.service.AdvanceOrder)
}

func (h *Handler) CancelOrder(c echo.Context) error {
	return h.transition(c, h.service.CancelOrder)
}

func (h *Handler) RefundOrder(c echo.Context) error {
	return h.transition(c, h.service.RefundOrder)
}

func (h *Handler) transition(c echo.Context, op func(ctx context.Context, orderID uuid.UUID, triggeredBy, notes string) (*Order, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := op(c.Request().Context(), id, actor(c), req.Notes)
	if err != nil {
		return transitionError(err)
	}
	return c.JSON(http.StatusOK, o)
}

type authorizeRequest struct {
	ProviderID   uuid.UUID            `json:"provider_id"`
	Prescription prescription.Request `json:"prescription"`
	Override     bool                 `json:"override"`
}

func (h *Handler) AuthorizePrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req authorizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ProviderID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "provider_id is required")
	}
	p, err := h.service.AuthorizePrescription(c.Request().Context(), id, req.ProviderID, req.Prescription, req.Override, actor(c))
	if err != nil {
		var blocked *ComplianceBlockedError
		var notAuthorized *provider.NotAuthorizedError
		switch {
		case errors.As(err, &blocked):
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{
				"error": blocked.Error(),
				"flags": blocked.Flags,
			})
		case errors.As(err, &notAuthorized):
			return echo.NewHTTPError(http.StatusForbidden, notAuthorized.Error())
		default:
			return transitionError(err)
		}
	}
	return c.JSON(http.StatusCreated, p)
}

func transitionError(err error) error {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyTerminal),
		errors.Is(err, ErrNotPrescriptionOrder),
		errors.Is(err, ErrNotAwaitingApproval),
		errors.Is(err, ErrConcurrentModification):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
