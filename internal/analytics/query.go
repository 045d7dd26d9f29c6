package analytics

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidRange = errors.New("invalid date range")

type DateField int

const (
	CreatedAt DateField = iota
	SimulatedCreatedAt
)

func (f DateField) String() string {
	if f == SimulatedCreatedAt {
		return "simulatedCreatedAt"
	}
	return "createdAt"
}

// Filter restricts range-scoped metrics to an inclusive range. The range
// applies only when both bounds are set; a lone bound means no filter.
type Filter struct {
	Field DateField
	Start *time.Time
	End   *time.Time
}

// Pick returns whichever of the two record timestamps the filter reads.
func (f Filter) Pick(created, simulated time.Time) time.Time {
	if f.Field == SimulatedCreatedAt {
		return simulated
	}
	return created
}

func (f Filter) Bounded() bool {
	return f.Start != nil && f.End != nil
}

func (f Filter) Contains(t time.Time) bool {
	if !f.Bounded() {
		return true
	}
	return !t.Before(*f.Start) && !t.After(*f.End)
}

type Query struct {
	Start        *time.Time
	End          *time.Time
	UseSimulated bool
	GroupBy      Granularity
}

func (q Query) Validate() error {
	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange,
			q.Start.Format(time.RFC3339), q.End.Format(time.RFC3339))
	}
	return nil
}

// Filter drops a lone start or end: only a complete range narrows the
// metrics.
func (q Query) Filter() Filter {
	f := Filter{Field: CreatedAt}
	if q.UseSimulated {
		f.Field = SimulatedCreatedAt
	}
	if q.Start != nil && q.End != nil {
		f.Start, f.End = q.Start, q.End
	}
	return f
}
