package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/sla"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

type SLARuleStore interface {
	ListActiveSLARules(ctx context.Context, sellerID int64) ([]models.SLARule, error)
	SaveSLARule(ctx context.Context, rule *models.SLARule) error
}

// SLARuleHandler manages seller SLA rules
type SLARuleHandler struct {
	store  SLARuleStore
	logger ectologger.Logger
}

func NewSLARuleHandler(store SLARuleStore, logger ectologger.Logger) *SLARuleHandler {
	return &SLARuleHandler{store: store, logger: logger}
}

func (h *SLARuleHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.PUT("/:id", h.Update)
}

type SLARuleRequest struct {
	SellerID        int64  `json:"seller_id" validate:"required,gt=0"`
	Name            string `json:"name" validate:"required,max=255"`
	ConditionType   string `json:"condition_type" validate:"required,oneof=keyword chat_type rating time_based"`
	ConditionValue  string `json:"condition_value"`
	DeadlineMinutes int    `json:"deadline_minutes" validate:"required,gt=0"`
	Priority        int    `json:"priority"`
	PriorityLabel   string `json:"priority_label" validate:"required,oneof=low normal high urgent"`
	IsActive        *bool  `json:"is_active"`
}

func (r SLARuleRequest) toRule(id int64) (*models.SLARule, error) {
	rule := &models.SLARule{
		ID:              id,
		SellerID:        r.SellerID,
		Name:            r.Name,
		ConditionType:   models.ConditionType(r.ConditionType),
		ConditionValue:  r.ConditionValue,
		DeadlineMinutes: r.DeadlineMinutes,
		Priority:        r.Priority,
		PriorityLabel:   models.Priority(r.PriorityLabel),
		IsActive:        r.IsActive == nil || *r.IsActive,
	}
	if err := sla.ValidateRule(*rule); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return rule, nil
}

type SLARuleListResponse struct {
	Rules []models.SLARule `json:"rules"`
	Count int              `json:"count"`
}

// List returns the seller's active rules in evaluation order
// GET /api/v1/sla/rules?seller_id=
func (h *SLARuleHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "SLARuleHandler.List")
	defer span.End()

	sellerID, err := RequireSellerID(c)
	if err != nil {
		return err
	}

	rules, err := h.store.ListActiveSLARules(ctx, sellerID)
	if err != nil {
		return err
	}
	rules = sla.Order(rules)
	if rules == nil {
		rules = []models.SLARule{}
	}

	return c.JSON(http.StatusOK, SLARuleListResponse{Rules: rules, Count: len(rules)})
}

// Create adds a rule
// POST /api/v1/sla/rules
func (h *SLARuleHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "SLARuleHandler.Create")
	defer span.End()

	var req SLARuleRequest
	if err := Bind(c, &req); err != nil {
		return err
	}
	rule, err := req.toRule(0)
	if err != nil {
		return err
	}

	if err := h.store.SaveSLARule(ctx, rule); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithField("seller_id", rule.SellerID).Infof("Created sla rule %d (%s)", rule.ID, rule.Name)
	return c.JSON(http.StatusCreated, rule)
}

// Update replaces a rule
// PUT /api/v1/sla/rules/:id
func (h *SLARuleHandler) Update(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "SLARuleHandler.Update")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid id: must be a positive integer")
	}

	var req SLARuleRequest
	if err := Bind(c, &req); err != nil {
		return err
	}
	rule, err := req.toRule(id)
	if err != nil {
		return err
	}

	if err := h.store.SaveSLARule(ctx, rule); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rule)
}
