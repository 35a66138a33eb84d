package entity

import "fmt"

// Status represents the lifecycle state of an order.
type Status string

const (
	StatusNew            Status = "new"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCanceled       Status = "canceled"
)

// legalTransitions is the single source of truth for status legality.
// delivered and canceled are terminal and have no outgoing edges.
var legalTransitions = map[Status]map[Status]bool{
	StatusNew:            {StatusPreparing: true, StatusCanceled: true},
	StatusConfirmed:      {StatusPreparing: true, StatusCanceled: true},
	StatusPreparing:      {StatusOutForDelivery: true, StatusCanceled: true},
	StatusOutForDelivery: {StatusDelivered: true, StatusCanceled: true},
	StatusDelivered:      {},
	StatusCanceled:       {},
}

// CanTransition reports whether the status change from -> to is legal.
// It is pure and total; unknown statuses simply yield false.
func CanTransition(from, to Status) bool {
	return legalTransitions[from][to]
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	_, ok := legalTransitions[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	edges, ok := legalTransitions[s]
	return ok && len(edges) == 0
}

func (s Status) String() string {
	return string(s)
}

// ActiveStatuses returns the non-terminal statuses, in lifecycle order.
func ActiveStatuses() []Status {
	return []Status{StatusNew, StatusConfirmed, StatusPreparing, StatusOutForDelivery}
}

// InvalidTransitionError signals a requested status change that is not
// present in the transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition: %s -> %s", e.From, e.To)
}
