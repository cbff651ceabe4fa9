package orders

import "github.com/angelmondragon/atelie-backend/pkg/enums"

var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusCreated: {
		enums.OrderStatusAwaitingPayment,
	},
	enums.OrderStatusAwaitingPayment: {
		enums.OrderStatusProcessingShipment,
		enums.OrderStatusCancelledBySeller,
		enums.OrderStatusCancelledByCustomer,
	},
	enums.OrderStatusProcessingShipment: {
		enums.OrderStatusShipped,
		enums.OrderStatusCancelledBySeller,
		enums.OrderStatusCancelledByCustomer,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelledBySeller,
		enums.OrderStatusCancelledByCustomer,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusRefunded,
	},
}

// CanTransition reports whether the order state machine has an edge from
// one status to the other. A status never transitions to itself.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// restocksOnCancel reports whether cancelling from status returns the
// reserved quantities. Once shipped the goods have left the warehouse.
func restocksOnCancel(from enums.OrderStatus) bool {
	return from == enums.OrderStatusAwaitingPayment || from == enums.OrderStatusProcessingShipment
}
