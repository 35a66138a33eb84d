package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ordesk/ordesk/internal/config"
	"github.com/ordesk/ordesk/internal/messaging"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// HandlerRegistration binds one message topic to its handler. Projection
// handlers contribute these through the worker.handlers Fx group.
type HandlerRegistration struct {
	Topic   string
	Handler messaging.Handler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Engine runs the configured number of consumers and dispatches messages
// to topic handlers.
type Engine struct {
	client   messaging.Client
	logger   *zap.Logger
	cfg      config.Config
	dispatch map[string]messaging.Handler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewEngine constructs the worker Engine.
func NewEngine(p Params) *Engine {
	dispatch := make(map[string]messaging.Handler, len(p.Registrations))
	for _, reg := range p.Registrations {
		if reg.Topic == "" || reg.Handler == nil {
			continue
		}
		dispatch[reg.Topic] = reg.Handler
	}

	return &Engine{
		client:   p.Client,
		logger:   p.Logger,
		cfg:      p.Config,
		dispatch: dispatch,
	}
}

// Module wires the engine into Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{
			OnStart: engine.start,
			OnStop:  engine.stop,
		})
	}),
)

func (e *Engine) start(ctx context.Context) error {
	if !e.cfg.Messaging.Enabled || !e.cfg.Messaging.Workers.Enabled {
		e.logger.Info("worker engine disabled")
		return nil
	}
	if len(e.dispatch) == 0 {
		e.logger.Info("worker engine has no handlers; skipping")
		return nil
	}

	concurrency := e.cfg.Messaging.Workers.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	for i := 0; i < concurrency; i++ {
		consumerID := i
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.consume(runCtx, consumerID)
		}()
	}

	e.logger.Info("worker engine started",
		zap.Int("consumers", concurrency),
		zap.Int("topics", len(e.dispatch)),
	)
	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.logger.Info("worker engine stopped")
		return nil
	}
}

// consume keeps one consumer alive until shutdown, backing off on broker
// errors so a flapping connection does not spin.
func (e *Engine) consume(ctx context.Context, consumerID int) {
	backoff := initialBackoff
	for ctx.Err() == nil {
		err := e.client.Consume(ctx, func(msgCtx context.Context, msg messaging.Message) error {
			handler, ok := e.dispatch[msg.Topic]
			if !ok {
				e.logger.Warn("no handler for topic", zap.String("topic", msg.Topic))
				return nil
			}

			e.logger.Debug("processing message",
				zap.String("topic", msg.Topic),
				zap.Int("consumer", consumerID),
			)
			return handler(msgCtx, msg)
		})

		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		e.logger.Error("consume loop error", zap.Int("consumer", consumerID), zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
