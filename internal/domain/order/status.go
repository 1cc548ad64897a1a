package order

import "fmt"

// Status is the customer-facing order status.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing,
		StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// validNext is the explicit transition table. Any transition not listed here
// is rejected.
var validNext = map[Status]map[Status]bool{
	StatusPending:        {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:      {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing:      {StatusOutForDelivery: true},
	StatusOutForDelivery: {StatusDelivered: true},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

// CanTransition reports whether from -> to is an allowed status transition.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// InvalidTransitionError reports a disallowed status transition. The order is
// left unchanged when it is returned.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid status transition %s -> %s", e.OrderID, e.From, e.To)
}

// ReservationStatus tracks the inventory-side lifecycle of an order.
// It enters each terminal state at most once.
type ReservationStatus string

const (
	ReservationNotReserved ReservationStatus = "not_reserved"
	ReservationReserved    ReservationStatus = "reserved"
	ReservationDelivered   ReservationStatus = "delivered"
	ReservationReleased    ReservationStatus = "released"
)

// Terminal reports whether the reservation has reached a final state.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationDelivered || s == ReservationReleased
}
