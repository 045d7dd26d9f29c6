// Package sequence issues order numbers.
//
// A Sequencer must hand out each number at most once across every concurrent
// caller, with later calls receiving larger numbers. Numbers lost to failed
// orders leave gaps; they are never reissued.
package sequence

import (
	"context"
	"sync/atomic"
)

// OrderNumbers is the counter name used for order numbers.
const OrderNumbers = "order_number"

type Sequencer interface {
	Next(ctx context.Context) (int64, error)
}

// Memory is a process-local Sequencer.
type Memory struct {
	value atomic.Int64
}

// NewMemory returns a sequencer whose first Next returns start+1.
func NewMemory(start int64) *Memory {
	m := &Memory{}
	m.value.Store(start)
	return m
}

func (m *Memory) Next(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.value.Add(1), nil
}

// Current reports the last issued number.
func (m *Memory) Current() int64 {
	return m.value.Load()
}
