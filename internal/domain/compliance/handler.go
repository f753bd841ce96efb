package compliance

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/fulfillment/pkg/pagination"
)

type Handler struct {
	profiles     ProfileRepository
	interactions InteractionRepository
}

func NewHandler(profiles ProfileRepository, interactions InteractionRepository) *Handler {
	return &Handler{profiles: profiles, interactions: interactions}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.PUT("/patients/:id/safety-profile", h.UpsertProfile)
	api.GET("/patients/:id/safety-profile", h.GetProfile)
	api.POST("/interactions", h.CreateInteraction)
	api.GET("/interactions", h.ListInteractions)
}

func (h *Handler) UpsertProfile(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var p SafetyProfile
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.PatientID = patientID
	if err := h.profiles.Upsert(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetProfile(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	p, err := h.profiles.GetByPatient(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "safety profile not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreateInteraction(c echo.Context) error {
	var i Interaction
	if err := c.Bind(&i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if i.MedicationA == "" || i.MedicationB == "" || i.Severity == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "medication_a, medication_b, and severity are required")
	}
	i.Active = true
	if err := h.interactions.Create(c.Request().Context(), &i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, i)
}

func (h *Handler) ListInteractions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.interactions.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
