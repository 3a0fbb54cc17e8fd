package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/voltmap/irve-etl/internal/domain"
)

// parseCSV reads a comma-separated extract with a mandatory header row into
// raw records. A UTF-8 BOM is tolerated; structurally broken rows (wrong
// field count, bad quoting) fail the whole parse with ErrParse — partial
// extracts are worse than a visible failure.
func parseCSV(data []byte) ([]domain.RawRecord, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrParse)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrParse, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []domain.RawRecord
	for index := 0; ; index++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrParse, index+1, err)
		}

		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				fields[name] = row[i]
			}
		}
		records = append(records, domain.RawRecord{Index: index, Fields: fields})
	}
	return records, nil
}
