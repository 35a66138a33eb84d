package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ordesk/ordesk/internal/entity"
)

// LineItem mirrors entity.LineItem for transport payloads.
type LineItem struct {
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	UnitPrice int64    `json:"unit_price"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID          uuid.UUID  `json:"id"`
	Number      int64      `json:"number"`
	Status      string     `json:"status"`
	Items       []LineItem `json:"items"`
	Total       int64      `json:"total"`
	Payment     string     `json:"payment,omitempty"`
	Fulfillment string     `json:"fulfillment"`
	Channel     string     `json:"channel,omitempty"`
	CustomerRef string     `json:"customer_ref,omitempty"`
	Address     string     `json:"address,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BoardOrderResponse is an order plus the action bindings the order board
// renders for it: only transitions legal from the current status.
type BoardOrderResponse struct {
	OrderResponse
	Actions []string `json:"actions"`
}

// KitchenOrderResponse is an order plus its display column, 1-based as the
// kitchen grid presents lanes.
type KitchenOrderResponse struct {
	OrderResponse
	Column int `json:"column"`
}

// HistoryEntryResponse represents a single ledger entry.
type HistoryEntryResponse struct {
	OrderID    uuid.UUID `json:"order_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Note       string    `json:"note,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FromOrder maps an entity to its transport representation.
func FromOrder(order *entity.Order) OrderResponse {
	items := make([]LineItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = LineItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Modifiers: item.Modifiers,
		}
	}
	return OrderResponse{
		ID:          order.ID,
		Number:      order.Number,
		Status:      string(order.Status),
		Items:       items,
		Total:       order.Total,
		Payment:     order.Payment,
		Fulfillment: string(order.Fulfillment),
		Channel:     order.Channel,
		CustomerRef: order.CustomerRef,
		Address:     order.Address,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

// FromHistoryEntry maps a ledger entry to its transport representation.
func FromHistoryEntry(entry *entity.HistoryEntry) HistoryEntryResponse {
	return HistoryEntryResponse{
		OrderID:    entry.OrderID,
		FromStatus: string(entry.FromStatus),
		ToStatus:   string(entry.ToStatus),
		Note:       entry.Note,
		Actor:      entry.Actor,
		OccurredAt: entry.OccurredAt,
	}
}
