package domain

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// TierUnknown is the tier assigned when the power rating is unknown.
const TierUnknown = "unknown"

// Tier is one bucket of the power classification: records with
// power_kw >= MinKW and below the next tier's MinKW belong to it.
type Tier struct {
	Name  string  `yaml:"name"`
	MinKW float64 `yaml:"min_kw"`
}

// TierTable classifies power ratings into ordered categorical tiers.
// Buckets are left-inclusive, right-exclusive; the last tier is unbounded.
type TierTable struct {
	tiers []Tier
}

// DefaultTierTable returns the built-in classification, aligned with the
// AFIREV/IRVE charging-speed conventions.
func DefaultTierTable() *TierTable {
	t, _ := NewTierTable([]Tier{
		{Name: "slow", MinKW: 0},
		{Name: "standard", MinKW: 7.4},
		{Name: "fast", MinKW: 22},
		{Name: "rapid", MinKW: 50},
		{Name: "ultra-rapid", MinKW: 150},
	})
	return t
}

// NewTierTable validates and builds a table: at least one tier, strictly
// ascending thresholds, first threshold at 0 so every non-negative power
// is classifiable, and no duplicate or empty names.
func NewTierTable(tiers []Tier) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, errors.New("tier table is empty")
	}
	if tiers[0].MinKW != 0 {
		return nil, fmt.Errorf("first tier %q must start at 0 kW, got %g", tiers[0].Name, tiers[0].MinKW)
	}
	seen := make(map[string]bool, len(tiers))
	for i, tier := range tiers {
		if tier.Name == "" {
			return nil, fmt.Errorf("tier %d has no name", i)
		}
		if tier.Name == TierUnknown {
			return nil, fmt.Errorf("tier name %q is reserved", TierUnknown)
		}
		if seen[tier.Name] {
			return nil, fmt.Errorf("duplicate tier name %q", tier.Name)
		}
		seen[tier.Name] = true
		if i > 0 && tier.MinKW <= tiers[i-1].MinKW {
			return nil, fmt.Errorf("tier %q threshold %g is not above %q", tier.Name, tier.MinKW, tiers[i-1].Name)
		}
	}
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return &TierTable{tiers: out}, nil
}

// LoadTierTable reads a tier table from a YAML file of the form:
//
//	tiers:
//	  - name: slow
//	    min_kw: 0
//	  - name: standard
//	    min_kw: 7.4
func LoadTierTable(path string) (*TierTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier table: %w", err)
	}
	var doc struct {
		Tiers []Tier `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tier table: %w", err)
	}
	return NewTierTable(doc.Tiers)
}

// Classify maps a power rating to its tier name. Unknown and non-finite
// power maps to TierUnknown. Pure function of the rating and the table.
func (t *TierTable) Classify(powerKW *float64) string {
	if powerKW == nil || math.IsNaN(*powerKW) || math.IsInf(*powerKW, 0) {
		return TierUnknown
	}
	// Last tier whose threshold is <= the rating. sort.Search finds the
	// first tier strictly above it.
	i := sort.Search(len(t.tiers), func(i int) bool {
		return t.tiers[i].MinKW > *powerKW
	})
	if i == 0 {
		// Unreachable for validated tables (first threshold is 0 and
		// normalization rejects negative power), kept as a guard.
		return TierUnknown
	}
	return t.tiers[i-1].Name
}

// Names returns the tier names in ascending threshold order.
func (t *TierTable) Names() []string {
	names := make([]string, len(t.tiers))
	for i, tier := range t.tiers {
		names[i] = tier.Name
	}
	return names
}

// Categorize returns a copy of the record with PowerTier derived from
// PowerKW, never contradicting the threshold table.
func (t *TierTable) Categorize(cp ChargePoint) ChargePoint {
	cp.PowerTier = t.Classify(cp.PowerKW)
	return cp
}
