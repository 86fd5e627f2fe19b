package data

import (
	"errors"
	"testing"
)

func TestParseValidReading(t *testing.T) {
	raw := []byte(`{"PH":7.0,"Temperature":25.125,"Turbidity":3,"Device":"probe-1"}`)

	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := SensorReading{PH: 7.0, Temperature: 25.125, Turbidity: 3}
	if got != want {
		t.Fatalf("Parse() = %+v, want %+v", got, want)
	}
}

func TestParseKeepsValuesUnchanged(t *testing.T) {
	raw := []byte(`{"PH":-0.000123,"Temperature":1e6,"Turbidity":123456.789012}`)

	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got.PH != -0.000123 || got.Temperature != 1e6 || got.Turbidity != 123456.789012 {
		t.Fatalf("values were altered: %+v", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
		message string
	}{
		{"not json", `{"PH":`, ErrMalformedPayload, "Error processing data"},
		{"plain text", `hello`, ErrMalformedPayload, "Error processing data"},
		{"bare number", `42`, ErrInvalidStructure, "Invalid JSON structure"},
		{"array", `[{"PH":7,"Temperature":25,"Turbidity":3}]`, ErrInvalidStructure, "Invalid JSON structure"},
		{"null", `null`, ErrInvalidStructure, "Invalid JSON structure"},
		{"string", `"PH"`, ErrInvalidStructure, "Invalid JSON structure"},
		{"only PH", `{"PH":7.0}`, ErrMissingFields, "Invalid data format"},
		{"missing turbidity", `{"PH":7.0,"Temperature":25}`, ErrMissingFields, "Invalid data format"},
		{"empty object", `{}`, ErrMissingFields, "Invalid data format"},
		{"wrong case", `{"ph":7,"temperature":25,"turbidity":3}`, ErrMissingFields, "Invalid data format"},
		{"string value", `{"PH":"7","Temperature":25,"Turbidity":3}`, ErrInvalidFieldType, "Invalid data format"},
		{"null value", `{"PH":7,"Temperature":null,"Turbidity":3}`, ErrInvalidFieldType, "Invalid data format"},
		{"bool value", `{"PH":7,"Temperature":25,"Turbidity":true}`, ErrInvalidFieldType, "Invalid data format"},
		{"object value", `{"PH":{"v":7},"Temperature":25,"Turbidity":3}`, ErrInvalidFieldType, "Invalid data format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse(%s) error = %v, want %v", tt.raw, err, tt.wantErr)
			}
			if got := ClientMessage(err); got != tt.message {
				t.Fatalf("ClientMessage() = %q, want %q", got, tt.message)
			}
		})
	}
}

func TestErrorType(t *testing.T) {
	_, err := Parse([]byte(`{"PH":7}`))
	if got := ErrorType(err); got != "missing_fields" {
		t.Fatalf("ErrorType() = %q", got)
	}
	if got := ErrorType(errors.New("boom")); got != "processing" {
		t.Fatalf("ErrorType() = %q", got)
	}
}
