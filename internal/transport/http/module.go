package http

import (
	"go.uber.org/fx"

	kdstransport "github.com/ordesk/ordesk/internal/transport/http/kds"
	ordertransport "github.com/ordesk/ordesk/internal/transport/http/order"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	kdstransport.Module,
)
