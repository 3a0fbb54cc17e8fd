package domain

import (
	"strings"
	"time"
)

// RawRecord is one CSV row as read from the source: original header names
// mapped to raw cell text. It exists only between loading and normalization.
type RawRecord struct {
	Index  int // zero-based data row order in the source
	Fields map[string]string
}

// ChargePoint is the canonical cleaned record for one logical charge point.
// Pointer fields distinguish unknown from zero: a nil PowerKW means the
// source did not report a usable power rating, not that the rating is 0.
//
// Once a ChargePoint is part of a published CleanDataset it is immutable.
type ChargePoint struct {
	IdentityKey string `json:"identity_key"`

	StationID   string `json:"station_id,omitempty"`
	ConnectorID string `json:"connector_id,omitempty"`

	OperatorName  string `json:"operator_name,omitempty"`
	AmenageurName string `json:"amenageur_name,omitempty"`
	Commune       string `json:"commune,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	PowerKW   *float64 `json:"power_kw,omitempty"`
	PowerTier string   `json:"power_tier"`

	InstalledAt   *time.Time `json:"installed_at,omitempty"`
	InstalledYear int        `json:"installed_year,omitempty"` // 0 when InstalledAt is unknown
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`

	Status string `json:"status"`

	// RowIndex is the record's position in the raw source, used as the
	// final deterministic tie-break during deduplication.
	RowIndex int `json:"-"`
}

// OperatorKey returns the case-folded operator name used for comparisons.
// Display casing is preserved in OperatorName.
func (c ChargePoint) OperatorKey() string {
	return strings.ToLower(strings.TrimSpace(c.OperatorName))
}

// HasCoordinates reports whether both coordinates were present in the source.
func (c ChargePoint) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// unknownFieldCount counts fields in the unknown state. Used to rank
// otherwise-equal duplicates: the more complete record wins.
func (c ChargePoint) unknownFieldCount() int {
	n := 0
	if c.PowerKW == nil {
		n++
	}
	if c.InstalledAt == nil {
		n++
	}
	if c.UpdatedAt == nil {
		n++
	}
	if c.OperatorName == "" {
		n++
	}
	if c.AmenageurName == "" {
		n++
	}
	if c.Commune == "" {
		n++
	}
	if c.Status == "" || c.Status == StatusUnknown {
		n++
	}
	return n
}

// StatusUnknown is the explicit operational-status sentinel.
const StatusUnknown = "unknown"

// DropReason classifies why validation removed a record.
type DropReason string

const (
	DropMissingCoordinates DropReason = "missing_coordinates"
	DropInvalidCoordinates DropReason = "invalid_coordinates"
	DropZeroCoordinates    DropReason = "zero_coordinates"
)

// Stats tallies what happened to the raw rows during one pipeline run.
type Stats struct {
	RawRows  int                `json:"raw_rows"`
	Rejected int                `json:"rejected"` // no identity material at all
	Dropped  map[DropReason]int `json:"dropped"`
	Merged   int                `json:"merged"` // raw rows collapsed into another record
	Accepted int                `json:"accepted"`
}

// TotalDropped sums the per-reason drop tallies.
func (s Stats) TotalDropped() int {
	n := 0
	for _, v := range s.Dropped {
		n += v
	}
	return n
}

// CleanDataset is the published result of one pipeline run. Consumers must
// treat it as read-only; a rebuild produces a fresh dataset rather than
// mutating an existing one.
type CleanDataset struct {
	Records     []ChargePoint `json:"records"`
	Fingerprint string        `json:"fingerprint"`
	BuiltAt     time.Time     `json:"built_at"`
	Stats       Stats         `json:"stats"`
}

// CountByOperator groups records by display operator name.
func (d *CleanDataset) CountByOperator() map[string]int {
	out := make(map[string]int)
	for _, r := range d.Records {
		name := r.OperatorName
		if name == "" {
			name = "Unknown"
		}
		out[name]++
	}
	return out
}

// CountByTier groups records by power tier.
func (d *CleanDataset) CountByTier() map[string]int {
	out := make(map[string]int)
	for _, r := range d.Records {
		out[r.PowerTier]++
	}
	return out
}

// CountByYear groups records by installation year. Records with an unknown
// installation date are omitted.
func (d *CleanDataset) CountByYear() map[int]int {
	out := make(map[int]int)
	for _, r := range d.Records {
		if r.InstalledYear != 0 {
			out[r.InstalledYear]++
		}
	}
	return out
}
