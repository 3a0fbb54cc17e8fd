package domain

import "math"

// Validate decides whether a normalized record is mappable. It never returns
// an error: the outcome is either accepted (ok=true) or a drop reason the
// pipeline tallies. Dropped records are not retained.
//
// Coordinates must both be present and in WGS-84 range, and must not be the
// (0,0) placeholder some operators submit for "unset". The three conditions
// carry distinct reasons so the zero-coordinate convention can be revisited
// without re-deriving it from aggregate counts.
func Validate(cp ChargePoint) (DropReason, bool) {
	if !cp.HasCoordinates() {
		return DropMissingCoordinates, false
	}
	lat, lon := *cp.Latitude, *cp.Longitude
	// Range checks alone would let NaN through: every comparison against NaN
	// is false.
	if math.IsNaN(lat) || math.IsNaN(lon) ||
		lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return DropInvalidCoordinates, false
	}
	if lat == 0 && lon == 0 {
		return DropZeroCoordinates, false
	}
	return "", true
}
