package storage

import (
	"context"
	"errors"

	"aquacare-relay/internal/data"
)

// ErrIncompleteBounds is returned when a threshold record lacks Min or Max.
var ErrIncompleteBounds = errors.New("threshold record is missing Min or Max")

// ThresholdStore supplies operator-configured bounds. found is false when no
// record exists for the metric.
type ThresholdStore interface {
	Bounds(ctx context.Context, metric data.Metric) (b data.Bounds, found bool, err error)
}

// ThresholdAdmin is a ThresholdStore that operators can edit.
type ThresholdAdmin interface {
	ThresholdStore
	SetBounds(ctx context.Context, metric data.Metric, b data.Bounds) error
}

// SensorStore durably records the latest value of each metric. Update merges
// fields with last-write-wins semantics.
type SensorStore interface {
	Update(ctx context.Context, fields map[string]interface{}) error
	Latest(ctx context.Context) (map[string]interface{}, error)
}

// boundsRecord mirrors a stored threshold record, where either field may be absent.
type boundsRecord struct {
	Min *float64 `json:"Min"`
	Max *float64 `json:"Max"`
}

func (r *boundsRecord) toBounds() (data.Bounds, bool, error) {
	if r == nil {
		return data.Bounds{}, false, nil
	}
	if r.Min == nil || r.Max == nil {
		return data.Bounds{}, false, ErrIncompleteBounds
	}
	return data.Bounds{Min: *r.Min, Max: *r.Max}, true, nil
}
