package kds

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/ordesk/ordesk/internal/entity"
	"github.com/ordesk/ordesk/internal/kds"
	service "github.com/ordesk/ordesk/internal/service/order"
)

// Module wires the kitchen display handlers and keeps the board in sync
// with the change feed.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(func(e *echo.Echo, h *Handler) {
		Register(e, h)
	}),
	fx.Invoke(func(lc fx.Lifecycle, svc *service.Service, board *kds.Board) {
		var unsubscribe func()
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				unsubscribe = svc.Subscribe(
					func(order *entity.Order) bool { return order.Status.Terminal() },
					func(order *entity.Order) { board.Forget(order.ID) },
				)
				return nil
			},
			OnStop: func(context.Context) error {
				if unsubscribe != nil {
					unsubscribe()
				}
				return nil
			},
		})
	}),
)
