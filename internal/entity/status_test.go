package entity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordesk/ordesk/internal/entity"
)

func allStatuses() []entity.Status {
	return []entity.Status{
		entity.StatusNew,
		entity.StatusConfirmed,
		entity.StatusPreparing,
		entity.StatusOutForDelivery,
		entity.StatusDelivered,
		entity.StatusCanceled,
	}
}

func TestCanTransition_LegalEdges(t *testing.T) {
	legal := map[entity.Status][]entity.Status{
		entity.StatusNew:            {entity.StatusPreparing, entity.StatusCanceled},
		entity.StatusConfirmed:      {entity.StatusPreparing, entity.StatusCanceled},
		entity.StatusPreparing:      {entity.StatusOutForDelivery, entity.StatusCanceled},
		entity.StatusOutForDelivery: {entity.StatusDelivered, entity.StatusCanceled},
		entity.StatusDelivered:      {},
		entity.StatusCanceled:       {},
	}

	for from, targets := range legal {
		allowed := make(map[entity.Status]bool, len(targets))
		for _, to := range targets {
			allowed[to] = true
		}
		for _, to := range allStatuses() {
			got := entity.CanTransition(from, to)
			assert.Equal(t, allowed[to], got, "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_UnknownStatuses(t *testing.T) {
	assert.False(t, entity.CanTransition("garbage", entity.StatusPreparing))
	assert.False(t, entity.CanTransition(entity.StatusNew, "garbage"))
	assert.False(t, entity.CanTransition("", ""))
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, entity.StatusDelivered.Terminal())
	assert.True(t, entity.StatusCanceled.Terminal())

	for _, s := range entity.ActiveStatuses() {
		assert.False(t, s.Terminal(), "%s must not be terminal", s)
	}
	assert.False(t, entity.Status("garbage").Terminal())
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range allStatuses() {
		assert.True(t, s.Valid(), "%s must be valid", s)
	}
	assert.False(t, entity.Status("pending").Valid())
}

func TestTerminalStatusesHaveNoExit(t *testing.T) {
	for _, from := range []entity.Status{entity.StatusDelivered, entity.StatusCanceled} {
		for _, to := range allStatuses() {
			assert.False(t, entity.CanTransition(from, to), "%s -> %s must be illegal", from, to)
		}
	}
}

func TestOrder_ValidateNew(t *testing.T) {
	valid := func() *entity.Order {
		return &entity.Order{
			Status: entity.StatusNew,
			Items: []entity.LineItem{
				{Name: "Margherita", Quantity: 2, UnitPrice: 950},
				{Name: "Tiramisu", Quantity: 1, UnitPrice: 600, Modifiers: []string{"no cocoa"}},
			},
			Total:       2500,
			Fulfillment: entity.FulfillmentCounter,
		}
	}

	t.Run("accepts consistent order", func(t *testing.T) {
		require.NoError(t, valid().ValidateNew())
	})

	t.Run("rejects mismatched total", func(t *testing.T) {
		o := valid()
		o.Total = 2400
		require.Error(t, o.ValidateNew())
	})

	t.Run("rejects empty items", func(t *testing.T) {
		o := valid()
		o.Items = nil
		require.Error(t, o.ValidateNew())
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		o := valid()
		o.Items[0].Quantity = 0
		require.Error(t, o.ValidateNew())
	})

	t.Run("rejects delivery without address", func(t *testing.T) {
		o := valid()
		o.Fulfillment = entity.FulfillmentDelivery
		require.Error(t, o.ValidateNew())
	})
}

func TestOrder_Clone(t *testing.T) {
	o := &entity.Order{
		Status: entity.StatusPreparing,
		Items:  []entity.LineItem{{Name: "Ramen", Quantity: 1, UnitPrice: 1200, Modifiers: []string{"extra chashu"}}},
		Total:  1200,
	}

	dup := o.Clone()
	require.NotSame(t, o, dup)

	dup.Items[0].Quantity = 9
	dup.Items[0].Modifiers[0] = "none"
	assert.Equal(t, 1, o.Items[0].Quantity)
	assert.Equal(t, "extra chashu", o.Items[0].Modifiers[0])
}
