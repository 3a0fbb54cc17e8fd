package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltmap/irve-etl/internal/domain"
	"github.com/voltmap/irve-etl/internal/loader"
	"github.com/voltmap/irve-etl/internal/observability"
)

const fixtureCSV = `id_station_itinerance,id_pdc_itinerance,nom_operateur,nom_commune,consolidated_latitude,consolidated_longitude,puissance_nominale,date_mise_en_service,date_maj,statut_pdc
FRS01,FRP01,IZIVIA,Lyon,45.76,4.83,22,2021-03-01,2023-01-01,En service
FRS01,FRP01,izivia,Lyon,45.76,4.83,50,2021-03-01,2024-06-01,En service
FRS02,FRP02,Electra,Paris,48.85,2.35,150,2022-07-12,2024-02-02,En service
,FRP03,TotalEnergies,Marseille,43.30,5.37,"3,7",2019-11-20,2022-05-05,
FRS04,FRP04,Allego,Lille,999,3.06,50,2023-01-01,2023-06-01,En service
FRS05,FRP05,Allego,,,,22,2023-01-01,2023-06-01,En service
FRS06,FRP06,Power Dot,Nantes,0,0,11,2023-02-01,2023-07-01,En service
`

func testPipeline(t *testing.T, csv string) (*Pipeline, loader.Source) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "irve.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o600))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	l := loader.New(nil, logger, 0)
	p := New(l, domain.DefaultTierTable(), logger, observability.NewMetricsForTesting())
	return p, loader.Source{Path: path, SchemaVersion: "v2"}
}

func TestBuild(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	p, src := testPipeline(t, fixtureCSV)
	ds, err := p.Build(context.Background(), src)
	require.NoError(t, err)

	t.Run("accounting", func(t *testing.T) {
		assert.Equal(t, 7, ds.Stats.RawRows)
		assert.Equal(t, 0, ds.Stats.Rejected)
		assert.Equal(t, 1, ds.Stats.Dropped[domain.DropInvalidCoordinates])
		assert.Equal(t, 1, ds.Stats.Dropped[domain.DropMissingCoordinates])
		assert.Equal(t, 1, ds.Stats.Dropped[domain.DropZeroCoordinates])
		assert.Equal(t, 1, ds.Stats.Merged)
		assert.Equal(t, 3, ds.Stats.Accepted)
		assert.Len(t, ds.Records, 3)
	})

	t.Run("build metadata", func(t *testing.T) {
		assert.Equal(t, Fingerprint(src), ds.Fingerprint)
		assert.Equal(t, fake.Now().UTC(), ds.BuiltAt)
	})

	t.Run("duplicate merged deterministically", func(t *testing.T) {
		var station *domain.ChargePoint
		for i := range ds.Records {
			if ds.Records[i].IdentityKey == "station:FRS01" {
				station = &ds.Records[i]
			}
		}
		require.NotNil(t, station)
		require.NotNil(t, station.PowerKW)
		assert.Equal(t, 50.0, *station.PowerKW) // the 2024-06-01 row wins
		assert.Equal(t, "rapid", station.PowerTier)
		require.NotNil(t, station.UpdatedAt)
		assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *station.UpdatedAt)
	})

	t.Run("tiers consistent with power", func(t *testing.T) {
		table := domain.DefaultTierTable()
		for _, rec := range ds.Records {
			assert.Equal(t, table.Classify(rec.PowerKW), rec.PowerTier, "record %s", rec.IdentityKey)
		}
	})

	t.Run("identity keys unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for _, rec := range ds.Records {
			assert.False(t, seen[rec.IdentityKey], "duplicate %s", rec.IdentityKey)
			seen[rec.IdentityKey] = true
		}
	})

	t.Run("coordinates all valid", func(t *testing.T) {
		for _, rec := range ds.Records {
			require.True(t, rec.HasCoordinates())
			assert.GreaterOrEqual(t, *rec.Latitude, -90.0)
			assert.LessOrEqual(t, *rec.Latitude, 90.0)
			assert.GreaterOrEqual(t, *rec.Longitude, -180.0)
			assert.LessOrEqual(t, *rec.Longitude, 180.0)
			assert.False(t, *rec.Latitude == 0 && *rec.Longitude == 0)
		}
	})

	t.Run("degraded fields stay unknown", func(t *testing.T) {
		var total *domain.ChargePoint
		for i := range ds.Records {
			if ds.Records[i].IdentityKey == "pdc:FRP03" {
				total = &ds.Records[i]
			}
		}
		require.NotNil(t, total)
		require.NotNil(t, total.PowerKW)
		assert.Equal(t, 3.7, *total.PowerKW) // decimal comma handled
		assert.Equal(t, "slow", total.PowerTier)
		assert.Equal(t, domain.StatusUnknown, total.Status)
	})
}

func TestBuild_Idempotent(t *testing.T) {
	p, src := testPipeline(t, fixtureCSV)

	first, err := p.Build(context.Background(), src)
	require.NoError(t, err)
	second, err := p.Build(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestBuild_DropAccounting(t *testing.T) {
	var b strings.Builder
	b.WriteString("id_pdc_itinerance,consolidated_latitude,consolidated_longitude\n")
	for i := 0; i < 95; i++ {
		fmt.Fprintf(&b, "FRP%03d,45.%02d,4.%02d\n", i, i, i)
	}
	for i := 95; i < 100; i++ {
		fmt.Fprintf(&b, "FRP%03d,123.0,4.0\n", i)
	}

	p, src := testPipeline(t, b.String())
	ds, err := p.Build(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 100, ds.Stats.RawRows)
	assert.Equal(t, 5, ds.Stats.Dropped[domain.DropInvalidCoordinates])
	assert.Equal(t, 95, ds.Stats.Accepted)
}

func TestBuild_SourceErrors(t *testing.T) {
	t.Run("unavailable source", func(t *testing.T) {
		p, _ := testPipeline(t, fixtureCSV)
		_, err := p.Build(context.Background(), loader.Source{Path: "/nonexistent/irve.csv"})
		assert.ErrorIs(t, err, loader.ErrSourceUnavailable)
	})

	t.Run("broken extract", func(t *testing.T) {
		p, src := testPipeline(t, "a,b\n\"unclosed\n")
		_, err := p.Build(context.Background(), src)
		assert.ErrorIs(t, err, loader.ErrParse)
	})
}

func TestFingerprint(t *testing.T) {
	a := loader.Source{URL: "https://example.org/irve.csv", SchemaVersion: "v2"}
	b := loader.Source{URL: "https://example.org/irve.csv", SchemaVersion: "v2"}
	c := loader.Source{URL: "https://example.org/other.csv", SchemaVersion: "v2"}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}
