package order

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ordesk/ordesk/internal/dto"
	"github.com/ordesk/ordesk/internal/entity"
	"github.com/ordesk/ordesk/internal/presentation/http/response"
	repo "github.com/ordesk/ordesk/internal/repository/order"
	service "github.com/ordesk/ordesk/internal/service/order"
	"github.com/ordesk/ordesk/pkg/errorbank"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var httpTracer = otel.Tracer("github.com/ordesk/ordesk/transport/http/order")

// Handler exposes order lifecycle endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.GET("/:id/history", h.history)
	g.POST("/:id/notes", h.addNote)
	g.POST("/:id/accept", h.action(entity.StatusPreparing))
	g.POST("/:id/cancel", h.action(entity.StatusCanceled))
	g.POST("/:id/advance", h.action(entity.StatusOutForDelivery))
	g.POST("/:id/complete", h.action(entity.StatusDelivered))

	e.GET("/board", h.board)
}

type createPayload struct {
	Items []struct {
		Name      string   `json:"name"`
		Quantity  int      `json:"quantity"`
		UnitPrice int64    `json:"unit_price"`
		Modifiers []string `json:"modifiers"`
	} `json:"items"`
	Payment     string `json:"payment"`
	Fulfillment string `json:"fulfillment"`
	Channel     string `json:"channel"`
	CustomerRef string `json:"customer_ref"`
	Address     string `json:"address"`
}

type actionPayload struct {
	ExpectedStatus string `json:"expected_status"`
	Actor          string `json:"actor"`
	Note           string `json:"note"`
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload createPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	items := make([]entity.LineItem, len(payload.Items))
	for i, item := range payload.Items {
		items[i] = entity.LineItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Modifiers: item.Modifiers,
		}
	}

	order := &entity.Order{
		Items:       items,
		Payment:     payload.Payment,
		Fulfillment: entity.FulfillmentMethod(payload.Fulfillment),
		Channel:     payload.Channel,
		CustomerRef: payload.CustomerRef,
		Address:     payload.Address,
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	defer span.End()

	if err := h.svc.Create(ctx, order); err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid order id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	filter := repo.Filter{Limit: 100}
	if status := c.QueryParam("status"); status != "" {
		s := entity.Status(status)
		if !s.Valid() {
			return b.WithError(errorbank.BadRequest("unknown status", errorbank.WithDetail("status", status))).Build()
		}
		filter.Statuses = []entity.Status{s}
	}
	if fulfillment := c.QueryParam("fulfillment"); fulfillment != "" {
		filter.Fulfillment = entity.FulfillmentMethod(fulfillment)
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	orders, err := h.svc.List(ctx, filter)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.OrderResponse, len(orders))
	for i, order := range orders {
		out[i] = dto.FromOrder(order)
	}
	return b.WithData(out).WithMeta("count", len(out)).Build()
}

func (h *Handler) history(c echo.Context) error {
	b := response.New(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid order id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.history", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	entries, err := h.svc.History(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.HistoryEntryResponse, len(entries))
	for i, entry := range entries {
		out[i] = dto.FromHistoryEntry(entry)
	}
	return b.WithData(out).Build()
}

func (h *Handler) addNote(c echo.Context) error {
	b := response.New(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid order id", errorbank.WithCause(err))).Build()
	}

	var payload actionPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.addNote", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	if err := h.svc.AddNote(ctx, id, payload.Note, payload.Actor); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).Build()
}

// action builds a handler for one fixed-target transition endpoint. The
// operator's expected status, when supplied, closes the lost-update window
// between what their screen showed and what the store holds now.
func (h *Handler) action(to entity.Status) echo.HandlerFunc {
	return func(c echo.Context) error {
		b := response.New(c)

		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return b.WithError(errorbank.BadRequest("invalid order id", errorbank.WithCause(err))).Build()
		}

		// Body is optional on action endpoints.
		var payload actionPayload
		if c.Request().ContentLength > 0 {
			if err := c.Bind(&payload); err != nil {
				return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
			}
		}

		var opts []service.TransitionOption
		if payload.ExpectedStatus != "" {
			expected := entity.Status(payload.ExpectedStatus)
			if !expected.Valid() {
				return b.WithError(errorbank.BadRequest("unknown expected status", errorbank.WithDetail("status", payload.ExpectedStatus))).Build()
			}
			opts = append(opts, service.WithExpectedStatus(expected))
		}
		if payload.Actor != "" {
			opts = append(opts, service.WithActor(payload.Actor))
		}

		ctx, span := httpTracer.Start(c.Request().Context(), "orders.transition", trace.WithAttributes(
			attribute.String("order.id", id.String()),
			attribute.String("order.status", string(to)),
		))
		defer span.End()

		note := payload.Note
		var order *entity.Order
		if note != "" {
			order, err = h.svc.RequestTransition(ctx, id, to, note, opts...)
		} else {
			switch to {
			case entity.StatusPreparing:
				order, err = h.svc.Accept(ctx, id, opts...)
			case entity.StatusCanceled:
				order, err = h.svc.Cancel(ctx, id, opts...)
			case entity.StatusOutForDelivery:
				order, err = h.svc.AdvanceToDelivery(ctx, id, opts...)
			case entity.StatusDelivered:
				order, err = h.svc.Complete(ctx, id, opts...)
			default:
				order, err = h.svc.RequestTransition(ctx, id, to, "", opts...)
			}
		}
		if err != nil {
			return b.WithError(mapTransitionError(err)).Build()
		}
		return b.WithData(dto.FromOrder(order)).Build()
	}
}

// board lists orders with the action bindings legal from their status.
func (h *Handler) board(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.board")
	defer span.End()

	orders, err := h.svc.Active(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.BoardOrderResponse, len(orders))
	for i, order := range orders {
		out[i] = dto.BoardOrderResponse{
			OrderResponse: dto.FromOrder(order),
			Actions:       actionsFor(order.Status),
		}
	}
	return b.WithData(out).Build()
}

var actionTargets = []struct {
	name string
	to   entity.Status
}{
	{"accept", entity.StatusPreparing},
	{"advance", entity.StatusOutForDelivery},
	{"complete", entity.StatusDelivered},
	{"cancel", entity.StatusCanceled},
}

func actionsFor(from entity.Status) []string {
	actions := make([]string, 0, len(actionTargets))
	for _, a := range actionTargets {
		if entity.CanTransition(from, a.to) {
			actions = append(actions, a.name)
		}
	}
	return actions
}

func mapTransitionError(err error) error {
	switch err.(type) {
	case *entity.InvalidTransitionError:
		return errorbank.Unprocessable(err.Error())
	case *service.ConcurrencyConflictError:
		return errorbank.Conflict(err.Error())
	default:
		return err
	}
}
