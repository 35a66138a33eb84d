package app

import (
	"go.uber.org/fx"

	"github.com/ordesk/ordesk/internal/cache"
	"github.com/ordesk/ordesk/internal/config"
	"github.com/ordesk/ordesk/internal/database"
	"github.com/ordesk/ordesk/internal/feed"
	"github.com/ordesk/ordesk/internal/guard"
	"github.com/ordesk/ordesk/internal/kds"
	"github.com/ordesk/ordesk/internal/logger"
	"github.com/ordesk/ordesk/internal/messaging"
	"github.com/ordesk/ordesk/internal/observability"
	repositoryhistory "github.com/ordesk/ordesk/internal/repository/history"
	repositoryorder "github.com/ordesk/ordesk/internal/repository/order"
	grpcserver "github.com/ordesk/ordesk/internal/server/grpc"
	httpserver "github.com/ordesk/ordesk/internal/server/http"
	serviceorder "github.com/ordesk/ordesk/internal/service/order"
	transporthttp "github.com/ordesk/ordesk/internal/transport/http"
	"github.com/ordesk/ordesk/internal/worker"
	workerorder "github.com/ordesk/ordesk/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	guard.Module,
	feed.Module,
	kds.Module,
	repositoryorder.Module,
	repositoryhistory.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
