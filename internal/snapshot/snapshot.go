// Package snapshot persists a clean dataset for warm starts and exports it
// for analysts. The warm-start format is JSON lines: a header object with
// the build metadata followed by one record per line. JSON null keeps the
// unknown sentinels distinct from zero and empty string across a round trip.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/voltmap/irve-etl/internal/domain"
)

// header is the first line of a snapshot file.
type header struct {
	Fingerprint     string       `json:"fingerprint"`
	PipelineVersion string       `json:"pipeline_version"`
	BuiltAt         time.Time    `json:"built_at"`
	Stats           domain.Stats `json:"stats"`
	RecordCount     int          `json:"record_count"`
}

// Write serializes a dataset to path. The file is written atomically via a
// temp file and rename so a crashed writer never leaves a torn snapshot.
func Write(path string, ds *domain.CleanDataset, pipelineVersion string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)

	h := header{
		Fingerprint:     ds.Fingerprint,
		PipelineVersion: pipelineVersion,
		BuiltAt:         ds.BuiltAt,
		Stats:           ds.Stats,
		RecordCount:     len(ds.Records),
	}
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}
	for i := range ds.Records {
		if err := enc.Encode(ds.Records[i]); err != nil {
			return fmt.Errorf("write snapshot record %d: %w", i, err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Read loads a snapshot. It refuses files written by a different pipeline
// version: their cleaning semantics no longer match the running binary.
func Read(path string, pipelineVersion string) (*domain.CleanDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("read snapshot: empty file %s", path)
	}
	var h header
	if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	if h.PipelineVersion != pipelineVersion {
		return nil, fmt.Errorf("snapshot pipeline version %q does not match %q", h.PipelineVersion, pipelineVersion)
	}

	records := make([]domain.ChargePoint, 0, h.RecordCount)
	for scanner.Scan() {
		var rec domain.ChargePoint
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("read snapshot record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(records) != h.RecordCount {
		return nil, fmt.Errorf("snapshot truncated: header says %d records, found %d", h.RecordCount, len(records))
	}

	return &domain.CleanDataset{
		Records:     records,
		Fingerprint: h.Fingerprint,
		BuiltAt:     h.BuiltAt,
		Stats:       h.Stats,
	}, nil
}
