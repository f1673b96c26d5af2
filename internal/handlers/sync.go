package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/thistle/pkg/ingest"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

type AlertChecker interface {
	Check(ctx context.Context, sellerID int64, now time.Time) ([]models.Alert, error)
}

type SyncStore interface {
	ListRecentRuns(ctx context.Context, sellerID int64, limit int) ([]models.SyncRun, error)
	SaveConnection(ctx context.Context, conn *models.SyncConnection) error
}

type SellerRepairer interface {
	RecomputeSeller(ctx context.Context, sellerID int64) (*ingest.RepairResult, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, key models.SyncKey) error
}

// SyncHandler serves the sync operations API
type SyncHandler struct {
	monitor    AlertChecker
	store      SyncStore
	repairer   SellerRepairer
	dispatcher Dispatcher
	logger     ectologger.Logger
	now        func() time.Time
}

func NewSyncHandler(monitor AlertChecker, store SyncStore, repairer SellerRepairer, dispatcher Dispatcher, logger ectologger.Logger) *SyncHandler {
	return &SyncHandler{
		monitor:    monitor,
		store:      store,
		repairer:   repairer,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

func (h *SyncHandler) Register(g *echo.Group) {
	g.GET("/alerts", h.ListAlerts)
	g.GET("/runs", h.ListRuns)
	g.PUT("/connections", h.SaveConnection)
	g.POST("/trigger", h.Trigger)
	g.POST("/repair", h.Repair)
}

type AlertListResponse struct {
	Alerts []models.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

// ListAlerts evaluates current sync health alerts, optionally for one seller and kind
// GET /api/v1/sync/alerts?seller_id=&kind=
func (h *SyncHandler) ListAlerts(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "SyncHandler.ListAlerts")
	defer span.End()

	sellerID, err := GetSellerID(c)
	if err != nil {
		return err
	}

	alerts, err := h.monitor.Check(ctx, sellerID, h.now())
	if err != nil {
		return err
	}
	if kind := c.QueryParam("kind"); kind != "" {
		alerts = ectolinq.Filter(alerts, func(a models.Alert) bool { return string(a.Kind) == kind })
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	return c.JSON(http.StatusOK, AlertListResponse{Alerts: alerts, Count: len(alerts)})
}

type RunListResponse struct {
	Runs  []models.SyncRun `json:"runs"`
	Count int              `json:"count"`
}

// ListRuns returns the seller's most recent sync runs
// GET /api/v1/sync/runs?seller_id=&limit=
func (h *SyncHandler) ListRuns(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "SyncHandler.ListRuns")
	defer span.End()

	sellerID, err := RequireSellerID(c)
	if err != nil {
		return err
	}

	runs, err := h.store.ListRecentRuns(ctx, sellerID, QueryInt(c, "limit", 50, 500))
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}

	return c.JSON(http.StatusOK, RunListResponse{Runs: runs, Count: len(runs)})
}

type ConnectionRequest struct {
	SellerID            int64  `json:"seller_id" validate:"required,gt=0"`
	Marketplace         string `json:"marketplace" validate:"required,max=64"`
	Channel             string `json:"channel" validate:"required,oneof=review question chat"`
	Enabled             *bool  `json:"enabled"`
	PollIntervalSeconds int    `json:"poll_interval_seconds" validate:"omitempty,min=30,max=86400"`
}

// SaveConnection enables or updates polling for one triple
// PUT /api/v1/sync/connections
func (h *SyncHandler) SaveConnection(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "SyncHandler.SaveConnection")
	defer span.End()

	var req ConnectionRequest
	if err := Bind(c, &req); err != nil {
		return err
	}

	conn := &models.SyncConnection{
		SellerID:            req.SellerID,
		Marketplace:         req.Marketplace,
		Channel:             models.Channel(req.Channel),
		Enabled:             req.Enabled == nil || *req.Enabled,
		PollIntervalSeconds: req.PollIntervalSeconds,
		CreatedAt:           h.now().UTC(),
	}
	if conn.PollIntervalSeconds == 0 {
		conn.PollIntervalSeconds = 300
	}

	if err := h.store.SaveConnection(ctx, conn); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithField("sync_key", conn.Key().String()).Infof("Saved sync connection (enabled=%t)", conn.Enabled)
	return c.JSON(http.StatusOK, conn)
}

type TriggerRequest struct {
	SellerID    int64  `json:"seller_id" validate:"required,gt=0"`
	Marketplace string `json:"marketplace" validate:"required"`
	Channel     string `json:"channel" validate:"required,oneof=review question chat"`
}

// Trigger dispatches one sync run outside the poll schedule
// POST /api/v1/sync/trigger
func (h *SyncHandler) Trigger(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "SyncHandler.Trigger")
	defer span.End()

	var req TriggerRequest
	if err := Bind(c, &req); err != nil {
		return err
	}

	key := models.SyncKey{SellerID: req.SellerID, Marketplace: req.Marketplace, Channel: models.Channel(req.Channel)}
	if err := h.dispatcher.Dispatch(ctx, key); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"sync_key": key.String(), "status": "dispatched"})
}

// Repair re-derives status and SLA for every stored interaction of the seller
// POST /api/v1/sync/repair?seller_id=
func (h *SyncHandler) Repair(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "SyncHandler.Repair")
	defer span.End()

	sellerID, err := RequireSellerID(c)
	if err != nil {
		return err
	}

	result, err := h.repairer.RecomputeSeller(ctx, sellerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
