package server

import (
	"errors"
	"net/http"

	"fulfillment/internal/analytics"
	"fulfillment/internal/inventory"
	"fulfillment/internal/orders"

	"github.com/gin-gonic/gin"
)

var errBadQuery = errors.New("invalid query parameter")

func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrCustomerNotFound),
		errors.Is(err, inventory.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrOutOfStock),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, orders.ErrInvalidRequest),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, analytics.ErrInvalidRange),
		errors.Is(err, errBadQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var oos *inventory.OutOfStockError
	if errors.As(err, &oos) {
		body["productId"] = oos.ProductID
		body["requested"] = oos.Requested
		body["available"] = oos.Available
	}
	c.JSON(status, body)
}
