package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// IdentityKey derives the deterministic key under which duplicate rows are
// collapsed. Priority: station roaming ID, then charge-point ID, then a
// short hash of (coordinates rounded to 4 decimals, operator, power) for
// rows that carry no explicit identifier. Deterministic keys make
// reprocessing idempotent — the same raw row always lands on the same key.
func IdentityKey(cp ChargePoint) string {
	if cp.StationID != "" {
		return "station:" + cp.StationID
	}
	if cp.ConnectorID != "" {
		return "pdc:" + cp.ConnectorID
	}

	var lat, lon, power float64
	if cp.Latitude != nil {
		lat = *cp.Latitude
	}
	if cp.Longitude != nil {
		lon = *cp.Longitude
	}
	if cp.PowerKW != nil {
		power = *cp.PowerKW
	}
	input := fmt.Sprintf("%.4f|%.4f|%s|%g", lat, lon, cp.OperatorKey(), power)
	hash := sha256.Sum256([]byte(input))
	return "loc:" + hex.EncodeToString(hash[:8])
}

// Dedupe collapses validated records sharing an identity key into one
// ChargePoint each. The surviving record is chosen deterministically:
// most recent known UpdatedAt wins, ties go to the record with the fewest
// unknown fields, remaining ties to the lowest original row index. Unknown
// fields on the winner are backfilled from the losers in the same order.
//
// Output order follows the first appearance of each identity key in the
// input, and the merged count reports how many raw rows were absorbed.
func Dedupe(records []ChargePoint) ([]ChargePoint, int) {
	groups := make(map[string][]ChargePoint)
	order := make([]string, 0, len(records))

	for _, rec := range records {
		key := IdentityKey(rec)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	out := make([]ChargePoint, 0, len(order))
	merged := 0
	for _, key := range order {
		group := groups[key]
		winner := mergeGroup(group)
		winner.IdentityKey = key
		out = append(out, winner)
		merged += len(group) - 1
	}
	return out, merged
}

// mergeGroup ranks a duplicate group by the precedence rule and backfills
// the winner's unknown fields from the rest.
func mergeGroup(group []ChargePoint) ChargePoint {
	ranked := make([]ChargePoint, len(group))
	copy(ranked, group)
	sort.SliceStable(ranked, func(i, j int) bool {
		return precedes(ranked[i], ranked[j])
	})

	winner := ranked[0]
	for _, loser := range ranked[1:] {
		winner = backfill(winner, loser)
	}
	return winner
}

// precedes reports whether a should win over b under the merge rule.
func precedes(a, b ChargePoint) bool {
	switch {
	case a.UpdatedAt != nil && b.UpdatedAt == nil:
		return true
	case a.UpdatedAt == nil && b.UpdatedAt != nil:
		return false
	case a.UpdatedAt != nil && b.UpdatedAt != nil && !a.UpdatedAt.Equal(*b.UpdatedAt):
		return a.UpdatedAt.After(*b.UpdatedAt)
	}
	if ua, ub := a.unknownFieldCount(), b.unknownFieldCount(); ua != ub {
		return ua < ub
	}
	return a.RowIndex < b.RowIndex
}

// backfill fills the winner's unknown fields from a losing duplicate.
// Known fields on the winner are never overwritten, so conflicts (a
// different operator name, say) resolve to the winner's value.
func backfill(winner, loser ChargePoint) ChargePoint {
	if winner.PowerKW == nil {
		winner.PowerKW = loser.PowerKW
	}
	if winner.InstalledAt == nil {
		winner.InstalledAt = loser.InstalledAt
		winner.InstalledYear = loser.InstalledYear
	}
	if winner.UpdatedAt == nil {
		winner.UpdatedAt = loser.UpdatedAt
	}
	if winner.OperatorName == "" {
		winner.OperatorName = loser.OperatorName
	}
	if winner.AmenageurName == "" {
		winner.AmenageurName = loser.AmenageurName
	}
	if winner.Commune == "" {
		winner.Commune = loser.Commune
	}
	if winner.Status == StatusUnknown && loser.Status != StatusUnknown {
		winner.Status = loser.Status
	}
	if winner.StationID == "" {
		winner.StationID = loser.StationID
	}
	if winner.ConnectorID == "" {
		winner.ConnectorID = loser.ConnectorID
	}
	return winner
}
