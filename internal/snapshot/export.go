package snapshot

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/voltmap/irve-etl/internal/domain"
)

var exportHeader = []string{
	"identity_key", "station_id", "connector_id", "operator", "amenageur",
	"commune", "latitude", "longitude", "power_kw", "power_tier",
	"installed_at", "installed_year", "updated_at", "status",
}

// ExportXLSX writes the dataset to an Excel workbook: a Records sheet with
// one row per charge point and a Summary sheet with the build metadata.
// Unknown fields become empty cells, never zeroes.
func ExportXLSX(path string, ds *domain.CleanDataset) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Records"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}
	for i, rec := range ds.Records {
		cell := fmt.Sprintf("A%d", i+2)
		row := []interface{}{
			rec.IdentityKey, rec.StationID, rec.ConnectorID, rec.OperatorName,
			rec.AmenageurName, rec.Commune,
			floatCell(rec.Latitude), floatCell(rec.Longitude),
			floatCell(rec.PowerKW), rec.PowerTier,
			dateCell(rec.InstalledAt), yearCell(rec.InstalledYear),
			dateCell(rec.UpdatedAt), rec.Status,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("export xlsx row %d: %w", i, err)
		}
	}

	if err := writeSummarySheet(f, ds); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, ds *domain.CleanDataset) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}

	rows := [][]interface{}{
		{"fingerprint", ds.Fingerprint},
		{"built_at", ds.BuiltAt.Format(time.RFC3339)},
		{"raw_rows", ds.Stats.RawRows},
		{"rejected", ds.Stats.Rejected},
		{"dropped", ds.Stats.TotalDropped()},
		{"merged", ds.Stats.Merged},
		{"accepted", ds.Stats.Accepted},
	}
	for reason, count := range ds.Stats.Dropped {
		rows = append(rows, []interface{}{"dropped." + string(reason), count})
	}
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("export xlsx summary: %w", err)
		}
	}
	return nil
}

func floatCell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func dateCell(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func yearCell(y int) interface{} {
	if y == 0 {
		return nil
	}
	return y
}
