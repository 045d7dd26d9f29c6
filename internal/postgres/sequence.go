package postgres

import (
	"context"
	"fmt"

	"fulfillment/internal/sequence"
)

const nextValueSQL = `
	INSERT INTO counters (name, value) VALUES (?, 1)
	ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
	RETURNING value
`

// Sequence hands out numbers from one named row of the counters table.
type Sequence struct {
	client *Client
	name   string
}

var _ sequence.Sequencer = (*Sequence)(nil)

func (c *Client) Sequence(name string) *Sequence {
	return &Sequence{client: c, name: name}
}

func (s *Sequence) Next(ctx context.Context) (int64, error) {
	var value int64
	if err := s.client.db.WithContext(ctx).Raw(nextValueSQL, s.name).Scan(&value).Error; err != nil {
		return 0, fmt.Errorf("next %s: %w", s.name, err)
	}
	return value, nil
}
