// internal/data/parser.go
package data

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrInvalidStructure = errors.New("payload is not a JSON object")
	ErrMissingFields    = errors.New("missing required fields")
	ErrInvalidFieldType = errors.New("field is not a number")
)

// Parse validates one inbound frame and returns the reading it carries.
// Values are returned exactly as decoded; extra keys are ignored.
func Parse(raw []byte) (SensorReading, error) {
	var reading SensorReading

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return reading, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, ok := generic.(map[string]interface{}); !ok {
		return reading, ErrInvalidStructure
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return reading, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var missing []string
	for _, m := range Metrics {
		if _, ok := fields[string(m)]; !ok {
			missing = append(missing, string(m))
		}
	}
	if len(missing) > 0 {
		return reading, fmt.Errorf("%w: %v", ErrMissingFields, missing)
	}

	values := make(map[Metric]float64, len(Metrics))
	for _, m := range Metrics {
		v, err := decodeNumber(fields[string(m)])
		if err != nil {
			return reading, fmt.Errorf("%w: %s", ErrInvalidFieldType, m)
		}
		values[m] = v
	}

	reading.PH = values[MetricPH]
	reading.Temperature = values[MetricTemperature]
	reading.Turbidity = values[MetricTurbidity]
	return reading, nil
}

// decodeNumber accepts only JSON numbers. null would otherwise decode to 0.
func decodeNumber(raw json.RawMessage) (float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || (trimmed[0] != '-' && (trimmed[0] < '0' || trimmed[0] > '9')) {
		return 0, ErrInvalidFieldType
	}
	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// ErrorType returns a short label for a validation error, used in metrics and logs.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, ErrInvalidStructure):
		return "invalid_structure"
	case errors.Is(err, ErrMissingFields):
		return "missing_fields"
	case errors.Is(err, ErrInvalidFieldType):
		return "invalid_field_type"
	default:
		return "processing"
	}
}

// ClientMessage is the text of the error frame sent back to the device.
func ClientMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidStructure):
		return "Invalid JSON structure"
	case errors.Is(err, ErrMissingFields), errors.Is(err, ErrInvalidFieldType):
		return "Invalid data format"
	default:
		return "Error processing data"
	}
}
