// internal/anomaly/detector.go
package anomaly

import (
	"context"

	"github.com/rs/zerolog"

	"aquacare-relay/internal/config"
	"aquacare-relay/internal/data"
	"aquacare-relay/internal/logger"
	"aquacare-relay/internal/metrics"
	"aquacare-relay/internal/storage"
)

// DisabledFunc reports whether a bounds record switches its metric's check off.
type DisabledFunc func(b data.Bounds) bool

// BothZero disables a check only when Min and Max are both zero.
func BothZero(b data.Bounds) bool { return b.Min == 0 && b.Max == 0 }

// EitherZero disables a check when Min or Max is zero.
func EitherZero(b data.Bounds) bool { return b.Min == 0 || b.Max == 0 }

// PolicyFunc maps a configured policy name to its predicate. Unknown names get BothZero.
func PolicyFunc(policy string) DisabledFunc {
	if policy == config.PolicyEitherZero {
		return EitherZero
	}
	return BothZero
}

// Detector evaluates readings against the bounds held in a ThresholdStore.
// Bounds are fetched on every call so operator edits apply to the next message.
type Detector struct {
	store    storage.ThresholdStore
	disabled DisabledFunc
	log      zerolog.Logger
}

func NewDetector(store storage.ThresholdStore, disabled DisabledFunc) *Detector {
	if disabled == nil {
		disabled = BothZero
	}
	return &Detector{
		store:    store,
		disabled: disabled,
		log:      logger.WithComponent("detector"),
	}
}

// Check returns one alert per metric whose value lies outside its bounds, in
// data.Metrics order. It never fails: a metric whose bounds cannot be read is skipped.
func (d *Detector) Check(ctx context.Context, reading data.SensorReading) []data.Alert {
	var alerts []data.Alert

	for _, m := range data.Metrics {
		bounds, found, err := d.store.Bounds(ctx, m)
		if err != nil {
			metrics.BoundsFetchFailures.WithLabelValues(string(m)).Inc()
			d.log.Warn().Err(err).Str("metric", string(m)).Msg("skipping check, bounds unavailable")
			continue
		}
		if !found {
			d.log.Debug().Str("metric", string(m)).Msg("skipping check, no bounds configured")
			continue
		}
		if d.disabled(bounds) {
			continue
		}

		value := reading.Value(m)
		if !bounds.Contains(value) {
			alert := data.NewAlert(m, value)
			alerts = append(alerts, alert)
			metrics.AlertsTotal.WithLabelValues(string(m)).Inc()
			d.log.Info().
				Str("metric", string(m)).
				Float64("value", value).
				Float64("min", bounds.Min).
				Float64("max", bounds.Max).
				Msg("value out of range")
		}
	}

	return alerts
}
