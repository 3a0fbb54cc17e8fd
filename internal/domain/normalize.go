package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Canonical IRVE column names. Aliases below map source header variants onto
// these; everything else in a row is dropped.
const (
	colStationID   = "id_station_itinerance"
	colConnectorIt = "id_pdc_itinerance"
	colConnectorLo = "id_pdc_local"
	colOperator    = "nom_operateur"
	colAmenageur   = "nom_amenageur"
	colCommune     = "nom_commune"
	colLatitude    = "consolidated_latitude"
	colLongitude   = "consolidated_longitude"
	colPower       = "puissance_nominale"
	colInstalled   = "date_mise_en_service"
	colUpdated     = "date_maj"
	colStatus      = "statut_pdc"
)

// columnAliases maps lowercased, trimmed source headers to canonical names.
// Headers already canonical map to themselves via canonicalColumn.
var columnAliases = map[string]string{
	"latitude":        colLatitude,
	"longitude":       colLongitude,
	"lat":             colLatitude,
	"lon":             colLongitude,
	"puissance":       colPower,
	"puissance_kw":    colPower,
	"operateur":       colOperator,
	"amenageur":       colAmenageur,
	"commune":         colCommune,
	"date_maj_pdc":    colUpdated,
	"statut":          colStatus,
	"id_pdc":          colConnectorIt,
	"id_station":      colStationID,
	"mise_en_service": colInstalled,
}

var canonicalColumns = map[string]bool{
	colStationID: true, colConnectorIt: true, colConnectorLo: true,
	colOperator: true, colAmenageur: true, colCommune: true,
	colLatitude: true, colLongitude: true, colPower: true,
	colInstalled: true, colUpdated: true, colStatus: true,
}

// canonicalColumn resolves a raw header to a canonical column name.
// Returns "" for columns the pipeline does not consume.
func canonicalColumn(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	if canonicalColumns[h] {
		return h
	}
	if alias, ok := columnAliases[h]; ok {
		return alias
	}
	return ""
}

// dateFormats is the ordered list of accepted date layouts; the first layout
// that parses wins. Anything else degrades to unknown.
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"02/01/2006",
}

// Normalize maps a raw row onto a ChargePoint with typed, repaired fields.
// Missing or malformed fields degrade to their unknown state; the row is
// rejected (ok=false) only when it carries no identity material at all — no
// station ID, no connector ID, and no coordinate pair — because such a row
// can never be assigned a deterministic identity key.
func Normalize(raw RawRecord) (ChargePoint, bool) {
	fields := make(map[string]string, len(raw.Fields))
	for header, value := range raw.Fields {
		if canonical := canonicalColumn(header); canonical != "" {
			fields[canonical] = strings.TrimSpace(value)
		}
	}

	cp := ChargePoint{
		StationID:     fields[colStationID],
		ConnectorID:   firstNonEmpty(fields[colConnectorIt], fields[colConnectorLo]),
		OperatorName:  titleCase(fields[colOperator]),
		AmenageurName: titleCase(fields[colAmenageur]),
		Commune:       titleCase(fields[colCommune]),
		Latitude:      parseCoordinate(fields[colLatitude]),
		Longitude:     parseCoordinate(fields[colLongitude]),
		PowerKW:       parsePowerKW(fields[colPower]),
		InstalledAt:   parseDate(fields[colInstalled]),
		UpdatedAt:     parseDate(fields[colUpdated]),
		Status:        normalizeStatus(fields[colStatus]),
		RowIndex:      raw.Index,
	}
	if cp.InstalledAt != nil {
		cp.InstalledYear = cp.InstalledAt.Year()
	}

	if cp.StationID == "" && cp.ConnectorID == "" && !cp.HasCoordinates() {
		return ChargePoint{}, false
	}
	return cp, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseCoordinate parses a decimal-degree value, accepting a decimal comma.
// Returns nil when the cell is blank, unparseable, or non-finite: ParseFloat
// accepts "NaN" and "Inf" spellings, but neither is a coordinate.
func parseCoordinate(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// parsePowerKW parses a nominal power rating in kW. Accepts a decimal comma
// and a trailing unit suffix ("22 kW"). Negative and non-finite values are
// treated as invalid and degrade to unknown, never clamped to zero.
func parsePowerKW(s string) *float64 {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, suffix := range []string{"kw", "kva"} {
		if strings.HasSuffix(lower, suffix) {
			s = strings.TrimSpace(s[:len(s)-len(suffix)])
			break
		}
	}
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// parseDate tries each accepted layout in order, first match wins.
// Returns nil (unknown) when no layout matches; never raises.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// normalizeStatus lowercases a reported status, defaulting to the unknown
// sentinel when the source is silent.
func normalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StatusUnknown
	}
	return s
}

// titleCase trims a display name and normalizes its casing word by word, so
// "TOTALENERGIES" and "totalenergies" aggregate under one label. Words are
// split on spaces and hyphens, matching French place-name conventions.
func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == ' ' || r == '-' || r == '\'':
			startOfWord = true
			b.WriteRune(r)
		case startOfWord:
			b.WriteRune(unicode.ToUpper(r))
			startOfWord = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
