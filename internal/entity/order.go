package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// FulfillmentMethod describes how the order reaches the customer.
type FulfillmentMethod string

const (
	FulfillmentDelivery FulfillmentMethod = "delivery"
	FulfillmentPickup   FulfillmentMethod = "pickup"
	FulfillmentCounter  FulfillmentMethod = "counter"
)

// LineItem is a single position on an order. Items are immutable once the
// order is created; edits in this domain create a new order.
type LineItem struct {
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	UnitPrice int64    `json:"unit_price"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// Order represents a customer purchase tracked through the status lifecycle.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID          uuid.UUID         `bun:"id,pk,type:uuid"`
	Number      int64             `bun:"number"`
	Status      Status            `bun:"status"`
	Items       []LineItem        `bun:"items,type:jsonb"`
	Total       int64             `bun:"total"`
	Payment     string            `bun:"payment"`
	Fulfillment FulfillmentMethod `bun:"fulfillment"`
	Channel     string            `bun:"channel"`
	CustomerRef string            `bun:"customer_ref,nullzero"`
	Address     string            `bun:"address,nullzero"`
	CreatedAt   time.Time         `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `bun:"updated_at,nullzero"`
}

// ItemsTotal computes the sum of quantity * unit price over all line items.
func (o *Order) ItemsTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += int64(item.Quantity) * item.UnitPrice
	}
	return total
}

// ValidateNew checks the invariants required of an order at creation time.
func (o *Order) ValidateNew() error {
	if len(o.Items) == 0 {
		return fmt.Errorf("order requires at least one line item")
	}
	for _, item := range o.Items {
		if item.Name == "" {
			return fmt.Errorf("line item name is required")
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("line item quantity must be positive: %q", item.Name)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("line item price must not be negative: %q", item.Name)
		}
	}
	if o.Total != o.ItemsTotal() {
		return fmt.Errorf("order total %d does not match line items total %d", o.Total, o.ItemsTotal())
	}
	switch o.Fulfillment {
	case FulfillmentDelivery, FulfillmentPickup, FulfillmentCounter:
	default:
		return fmt.Errorf("unsupported fulfillment method: %s", o.Fulfillment)
	}
	if o.Fulfillment == FulfillmentDelivery && o.Address == "" {
		return fmt.Errorf("delivery orders require an address")
	}
	return nil
}

// Clone returns a deep copy of the order. Change feed subscribers receive
// clones so they can never mutate canonical state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	dup := *o
	if o.Items != nil {
		dup.Items = make([]LineItem, len(o.Items))
		copy(dup.Items, o.Items)
		for i, item := range o.Items {
			if item.Modifiers != nil {
				dup.Items[i].Modifiers = append([]string(nil), item.Modifiers...)
			}
		}
	}
	return &dup
}
