package http

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voltmap/irve-etl/internal/domain"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleReady reports ready once a complete dataset is servable. It never
// triggers a build: readiness probes must stay cheap.
func (s *Server) handleReady(c *gin.Context) {
	if s.provider.Current(s.src) == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "no dataset built yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// dataset fetches (building if needed) the clean dataset, or writes the
// no-data error response and returns nil.
func (s *Server) dataset(c *gin.Context) *domain.CleanDataset {
	ds, err := s.provider.GetOrBuild(c.Request.Context(), s.src)
	if err != nil {
		s.logger.Error("dataset unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no data available", "detail": err.Error()})
		return nil
	}
	return ds
}

func (s *Server) handleRecords(c *gin.Context) {
	ds := s.dataset(c)
	if ds == nil {
		return
	}

	records := ds.Records
	if operator := strings.TrimSpace(c.Query("operator")); operator != "" {
		records = filterRecords(records, func(r domain.ChargePoint) bool {
			return strings.EqualFold(r.OperatorName, operator)
		})
	}
	if commune := strings.TrimSpace(c.Query("commune")); commune != "" {
		records = filterRecords(records, func(r domain.ChargePoint) bool {
			return strings.EqualFold(r.Commune, commune)
		})
	}
	if tier := strings.TrimSpace(c.Query("tier")); tier != "" {
		records = filterRecords(records, func(r domain.ChargePoint) bool {
			return r.PowerTier == tier
		})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	perPage := parsePositiveInt(c.Query("per_page"), defaultPageSize)
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	start := (page - 1) * perPage
	if start > len(records) {
		start = len(records)
	}
	end := start + perPage
	if end > len(records) {
		end = len(records)
	}

	c.JSON(http.StatusOK, gin.H{
		"records":  records[start:end],
		"page":     page,
		"per_page": perPage,
		"total":    len(records),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	ds := s.dataset(c)
	if ds == nil {
		return
	}

	resp := gin.H{
		"fingerprint": ds.Fingerprint,
		"built_at":    ds.BuiltAt,
		"stats":       ds.Stats,
	}
	if errAt, err := s.provider.LastError(s.src); err != nil {
		// The served dataset predates a failed refresh: tell the UI it is
		// looking at stale data, not missing data.
		resp["stale"] = true
		resp["last_refresh_error"] = err.Error()
		resp["last_refresh_error_at"] = errAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleOperators(c *gin.Context) {
	ds := s.dataset(c)
	if ds == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"operators": sortedCounts(ds.CountByOperator())})
}

func (s *Server) handleTiers(c *gin.Context) {
	ds := s.dataset(c)
	if ds == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": sortedCounts(ds.CountByTier())})
}

func (s *Server) handleYears(c *gin.Context) {
	ds := s.dataset(c)
	if ds == nil {
		return
	}

	byYear := ds.CountByYear()
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	out := make([]gin.H, 0, len(years))
	for _, y := range years {
		out = append(out, gin.H{"year": y, "count": byYear[y]})
	}
	c.JSON(http.StatusOK, gin.H{"years": out})
}

// handleRefresh is the explicit cache-invalidation signal: it rebuilds the
// dataset and reports the new build, or 502 when the rebuild failed (the
// previous dataset stays servable).
func (s *Server) handleRefresh(c *gin.Context) {
	ds, err := s.provider.Refresh(c.Request.Context(), s.src)
	if err != nil {
		resp := gin.H{"error": "refresh failed", "detail": err.Error()}
		if prev := s.provider.Current(s.src); prev != nil {
			resp["serving"] = gin.H{"fingerprint": prev.Fingerprint, "built_at": prev.BuiltAt}
		}
		c.JSON(http.StatusBadGateway, resp)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fingerprint": ds.Fingerprint,
		"built_at":    ds.BuiltAt,
		"accepted":    ds.Stats.Accepted,
	})
}

func filterRecords(records []domain.ChargePoint, keep func(domain.ChargePoint) bool) []domain.ChargePoint {
	out := make([]domain.ChargePoint, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func parsePositiveInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

type labelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// sortedCounts orders a count map by descending count, then label, for
// stable output.
func sortedCounts(m map[string]int) []labelCount {
	out := make([]labelCount, 0, len(m))
	for label, count := range m {
		out = append(out, labelCount{Label: label, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
