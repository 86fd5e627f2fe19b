// internal/data/models.go
package data

import (
	"fmt"
	"strings"
)

// Metric names one of the three probe channels a device reports.
type Metric string

const (
	MetricPH          Metric = "PH"
	MetricTemperature Metric = "Temperature"
	MetricTurbidity   Metric = "Turbidity"
)

// Metrics lists every metric in evaluation order.
var Metrics = []Metric{MetricPH, MetricTemperature, MetricTurbidity}

// ParseMetric matches a metric name case-insensitively.
func ParseMetric(name string) (Metric, error) {
	for _, m := range Metrics {
		if strings.EqualFold(name, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", name)
}

// AlertKey is the frame key used when an alert for m is sent to the device.
func (m Metric) AlertKey() string {
	switch m {
	case MetricPH:
		return "alertForPH"
	case MetricTemperature:
		return "alertForTemp"
	case MetricTurbidity:
		return "alertForTurb"
	}
	return "alertFor" + string(m)
}

// SensorReading is one validated tuple of probe values.
type SensorReading struct {
	PH          float64 `json:"PH"`
	Temperature float64 `json:"Temperature"`
	Turbidity   float64 `json:"Turbidity"`
}

// Value returns the reading's value for m.
func (r SensorReading) Value(m Metric) float64 {
	switch m {
	case MetricPH:
		return r.PH
	case MetricTemperature:
		return r.Temperature
	default:
		return r.Turbidity
	}
}

// Fields is the batch written to the sensor store.
func (r SensorReading) Fields() map[string]interface{} {
	return map[string]interface{}{
		string(MetricPH):          r.PH,
		string(MetricTemperature): r.Temperature,
		string(MetricTurbidity):   r.Turbidity,
	}
}

// Bounds is the operator-configured inclusive range for one metric.
type Bounds struct {
	Min float64 `json:"Min"`
	Max float64 `json:"Max"`
}

// Contains reports whether v lies within [Min, Max].
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Alert is produced when a reading falls outside its bounds.
type Alert struct {
	Metric  Metric  `json:"metric"`
	Message string  `json:"message"`
	Value   float64 `json:"value"`
}

// NewAlert builds the alert for a value of m that is out of range.
func NewAlert(m Metric, value float64) Alert {
	return Alert{
		Metric:  m,
		Message: fmt.Sprintf("%s value is out of range", m),
		Value:   value,
	}
}

// Title and Body are what the push notification shows to operators.
func (a Alert) Title() string { return fmt.Sprintf("%s Alert", a.Metric) }

func (a Alert) Body() string {
	return fmt.Sprintf("%s value %v is out of range!", a.Metric, a.Value)
}
