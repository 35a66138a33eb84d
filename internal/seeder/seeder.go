package seeder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ordesk/ordesk/internal/database"
	"github.com/ordesk/ordesk/internal/entity"
)

// Module registers the seeder with Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Orders seeds a handful of orders spread across the lifecycle so the board
// and the dashboard have something to show. Existing order numbers are left
// untouched.
func (s *Seeder) Orders(ctx context.Context) error {
	now := time.Now().UTC()
	samples := []entity.Order{
		{
			ID:     uuid.New(),
			Number: 1000,
			Status: entity.StatusNew,
			Items: []entity.LineItem{
				{Name: "Margherita", Quantity: 1, UnitPrice: 1200},
				{Name: "Tiramisu", Quantity: 2, UnitPrice: 650},
			},
			Total:       2500,
			Payment:     "card",
			Fulfillment: entity.FulfillmentPickup,
			Channel:     "pos",
			CreatedAt:   now.Add(-40 * time.Minute),
			UpdatedAt:   now.Add(-40 * time.Minute),
		},
		{
			ID:     uuid.New(),
			Number: 1001,
			Status: entity.StatusPreparing,
			Items: []entity.LineItem{
				{Name: "Quattro Formaggi", Quantity: 1, UnitPrice: 1450, Modifiers: []string{"extra gorgonzola"}},
			},
			Total:       1450,
			Payment:     "cash",
			Fulfillment: entity.FulfillmentCounter,
			Channel:     "pos",
			CreatedAt:   now.Add(-25 * time.Minute),
			UpdatedAt:   now.Add(-15 * time.Minute),
		},
		{
			ID:     uuid.New(),
			Number: 1002,
			Status: entity.StatusOutForDelivery,
			Items: []entity.LineItem{
				{Name: "Diavola", Quantity: 2, UnitPrice: 1350},
				{Name: "Cola", Quantity: 2, UnitPrice: 300},
			},
			Total:       3300,
			Payment:     "card",
			Fulfillment: entity.FulfillmentDelivery,
			Channel:     "web",
			CustomerRef: "web-4821",
			Address:     "12 Via Roma",
			CreatedAt:   now.Add(-20 * time.Minute),
			UpdatedAt:   now.Add(-5 * time.Minute),
		},
		{
			ID:     uuid.New(),
			Number: 1003,
			Status: entity.StatusDelivered,
			Items: []entity.LineItem{
				{Name: "Calzone", Quantity: 1, UnitPrice: 1250},
			},
			Total:       1250,
			Payment:     "card",
			Fulfillment: entity.FulfillmentDelivery,
			Channel:     "phone",
			Address:     "4 Piazza Dante",
			CreatedAt:   now.Add(-90 * time.Minute),
			UpdatedAt:   now.Add(-50 * time.Minute),
		},
	}

	for i := range samples {
		order := samples[i]
		_, err := s.db.NewInsert().Model(&order).
			On("CONFLICT (number) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded orders", zap.Int("count", len(samples)))
	}
	return nil
}
