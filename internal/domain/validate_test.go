package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		lat    *float64
		lon    *float64
		ok     bool
		reason DropReason
	}{
		{"valid mainland france", ptr(48.8566), ptr(2.3522), true, ""},
		{"valid negative longitude", ptr(47.2184), ptr(-1.5536), true, ""},
		{"boundary latitude", ptr(90.0), ptr(0.1), true, ""},
		{"boundary longitude", ptr(0.1), ptr(-180.0), true, ""},
		{"missing both", nil, nil, false, DropMissingCoordinates},
		{"missing latitude only", nil, ptr(2.35), false, DropMissingCoordinates},
		{"missing longitude only", ptr(48.85), nil, false, DropMissingCoordinates},
		{"latitude out of range", ptr(91.0), ptr(2.35), false, DropInvalidCoordinates},
		{"longitude out of range", ptr(48.85), ptr(181.0), false, DropInvalidCoordinates},
		{"latitude below range", ptr(-90.5), ptr(2.35), false, DropInvalidCoordinates},
		{"zero sentinel", ptr(0.0), ptr(0.0), false, DropZeroCoordinates},
		{"zero latitude alone is real", ptr(0.0), ptr(6.6), true, ""},
		{"NaN latitude", ptr(math.NaN()), ptr(2.35), false, DropInvalidCoordinates},
		{"NaN longitude", ptr(48.85), ptr(math.NaN()), false, DropInvalidCoordinates},
		{"infinite latitude", ptr(math.Inf(1)), ptr(2.35), false, DropInvalidCoordinates},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reason, ok := Validate(ChargePoint{Latitude: tc.lat, Longitude: tc.lon})
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}
