package domain

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierTableClassify(t *testing.T) {
	table := DefaultTierTable()

	tests := []struct {
		name  string
		power *float64
		want  string
	}{
		{"unknown power", nil, TierUnknown},
		{"zero", ptr(0.0), "slow"},
		{"below first boundary", ptr(7.3), "slow"},
		{"boundary is right-exclusive", ptr(7.4), "standard"},
		{"just under fast", ptr(21.9), "standard"},
		{"exactly fast", ptr(22.0), "fast"},
		{"rapid", ptr(50.0), "rapid"},
		{"just under ultra", ptr(149.99), "rapid"},
		{"ultra boundary", ptr(150.0), "ultra-rapid"},
		{"unbounded top tier", ptr(400.0), "ultra-rapid"},
		{"NaN is unknown", ptr(math.NaN()), TierUnknown},
		{"infinity is unknown", ptr(math.Inf(1)), TierUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, table.Classify(tc.power))
		})
	}
}

func TestNewTierTable(t *testing.T) {
	t.Run("empty table", func(t *testing.T) {
		_, err := NewTierTable(nil)
		assert.Error(t, err)
	})

	t.Run("first tier must start at zero", func(t *testing.T) {
		_, err := NewTierTable([]Tier{{Name: "slow", MinKW: 3}})
		assert.ErrorContains(t, err, "must start at 0")
	})

	t.Run("thresholds must ascend", func(t *testing.T) {
		_, err := NewTierTable([]Tier{
			{Name: "slow", MinKW: 0},
			{Name: "fast", MinKW: 22},
			{Name: "standard", MinKW: 7.4},
		})
		assert.Error(t, err)
	})

	t.Run("unknown is reserved", func(t *testing.T) {
		_, err := NewTierTable([]Tier{{Name: TierUnknown, MinKW: 0}})
		assert.ErrorContains(t, err, "reserved")
	})

	t.Run("duplicate names rejected", func(t *testing.T) {
		_, err := NewTierTable([]Tier{
			{Name: "slow", MinKW: 0},
			{Name: "slow", MinKW: 22},
		})
		assert.ErrorContains(t, err, "duplicate")
	})
}

func TestLoadTierTable(t *testing.T) {
	t.Run("valid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tiers.yaml")
		content := `tiers:
  - name: normal
    min_kw: 0
  - name: fast
    min_kw: 22
  - name: very-fast
    min_kw: 50
  - name: ultra-fast
    min_kw: 150
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		table, err := LoadTierTable(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"normal", "fast", "very-fast", "ultra-fast"}, table.Names())
		assert.Equal(t, "very-fast", table.Classify(ptr(60.0)))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTierTable(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("broken yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tiers.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tiers: ["), 0o600))

		_, err := LoadTierTable(path)
		assert.ErrorContains(t, err, "parse tier table")
	})
}

func TestCategorize(t *testing.T) {
	table := DefaultTierTable()

	cp := table.Categorize(ChargePoint{PowerKW: ptr(21.9)})
	assert.Equal(t, "standard", cp.PowerTier)

	cp = table.Categorize(ChargePoint{})
	assert.Equal(t, TierUnknown, cp.PowerTier)
}
