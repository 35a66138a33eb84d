package kds

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ordesk/ordesk/internal/dto"
	"github.com/ordesk/ordesk/internal/kds"
	"github.com/ordesk/ordesk/internal/presentation/http/response"
	service "github.com/ordesk/ordesk/internal/service/order"
	"github.com/ordesk/ordesk/pkg/errorbank"
	"go.opentelemetry.io/otel"
)

var httpTracer = otel.Tracer("github.com/ordesk/ordesk/transport/http/kds")

// Handler exposes the kitchen display grid: active orders distributed over
// lanes, drag moves, and column-count changes.
type Handler struct {
	svc   *service.Service
	board *kds.Board
}

// NewHandler constructs a kitchen display Handler.
func NewHandler(svc *service.Service, board *kds.Board) *Handler {
	return &Handler{svc: svc, board: board}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/kds")
	g.GET("", h.grid)
	g.POST("/drag", h.drag)
	g.PUT("/columns", h.setColumns)
}

// grid returns the active orders with their 1-based display columns.
func (h *Handler) grid(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "kds.grid")
	defer span.End()

	orders, err := h.svc.Active(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	ids := make([]uuid.UUID, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}
	columns := h.board.View(ids)

	out := make([]dto.KitchenOrderResponse, len(orders))
	for i, order := range orders {
		out[i] = dto.KitchenOrderResponse{
			OrderResponse: dto.FromOrder(order),
			Column:        columns[order.ID] + 1,
		}
	}
	return b.WithData(out).WithMeta("columns", h.board.Columns()).Build()
}

type dragPayload struct {
	OrderID uuid.UUID `json:"order_id"`
	Column  int       `json:"column"`
}

// drag records a manual placement for one order. It overrides that order's
// computed lane until the next full recomputation.
func (h *Handler) drag(c echo.Context) error {
	b := response.New(c)

	var payload dragPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.OrderID == uuid.Nil {
		return b.WithError(errorbank.BadRequest("order_id is required")).Build()
	}

	_, span := httpTracer.Start(c.Request().Context(), "kds.drag")
	defer span.End()

	// The grid presents 1-based lanes.
	if err := h.board.Move(payload.OrderID, payload.Column-1); err != nil {
		return b.WithError(errorbank.BadRequest(err.Error())).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

type columnsPayload struct {
	Columns int `json:"columns"`
}

// setColumns changes the lane count and redistributes every active order
// from scratch, discarding manual placements.
func (h *Handler) setColumns(c echo.Context) error {
	b := response.New(c)

	var payload columnsPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "kds.setColumns")
	defer span.End()

	orders, err := h.svc.Active(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	ids := make([]uuid.UUID, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}

	if err := h.board.Recompute(ids, payload.Columns); err != nil {
		return b.WithError(errorbank.BadRequest(err.Error())).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}
