package orders

import "fulfillment/models"

// delivered and cancelled have no outgoing edges.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderProcessing: {models.OrderShipped, models.OrderCancelled},
	models.OrderShipped:    {models.OrderDelivered, models.OrderCancelled},
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CheckTransition(from, to models.OrderStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

func IsTerminal(s models.OrderStatus) bool {
	return len(transitions[s]) == 0
}
