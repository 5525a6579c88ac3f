// Package collect builds purchase requests from a calling agent's parameters
// or from an operator at a terminal.
package collect

import (
	"context"

	"github.com/patrickjm/shopbot/internal/order"
)

// Collector produces a validated request or fails without side effects.
type Collector interface {
	Collect(ctx context.Context) (order.Request, error)
}
