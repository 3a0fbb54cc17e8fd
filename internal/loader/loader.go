// Package loader acquires the raw IRVE extract from a local file or remote
// open-data endpoint and parses it into raw records. Parsed results are
// memoized by source identity and content hash. A remote source is
// revalidated with a conditional request (If-None-Match / If-Modified-Since
// from the last download), so an unchanged extract is not re-downloaded; when
// the server supplies no validators, an unchanged body still costs only one
// hash instead of a re-parse.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/voltmap/irve-etl/internal/domain"
)

var (
	// ErrSourceUnavailable marks a source that could not be reached or
	// opened. Transient network failures are retried before this surfaces.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrParse marks structurally broken input. Parse failures are
	// deterministic and are never retried.
	ErrParse = errors.New("parse error")
)

// Source identifies one raw dataset: either a local file path or a remote
// URL, plus the schema version the caller expects.
type Source struct {
	URL           string
	Path          string
	SchemaVersion string
}

// Identity returns the stable string identifying this source, used for
// memoization and cache fingerprints.
func (s Source) Identity() string {
	location := s.URL
	if location == "" {
		location = "file://" + s.Path
	}
	return location + "#" + s.SchemaVersion
}

// Loader fetches and parses raw records with a per-process memo.
type Loader struct {
	client  *http.Client
	logger  *slog.Logger
	retries int

	mu   sync.Mutex
	memo map[string]memoEntry
}

type memoEntry struct {
	contentHash string
	records     []domain.RawRecord
	validators  validators
}

// validators carries the HTTP cache validators from the last successful
// download, replayed on the next request as a conditional GET.
type validators struct {
	etag         string
	lastModified string
}

// fetchResult is one remote fetch outcome: either a body with its
// validators, or a 304 revalidation.
type fetchResult struct {
	data        []byte
	validators  validators
	notModified bool
}

// New creates a Loader. retries bounds how many times a transient remote
// failure is retried before ErrSourceUnavailable surfaces.
func New(client *http.Client, logger *slog.Logger, retries int) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if retries < 0 {
		retries = 0
	}
	return &Loader{
		client:  client,
		logger:  logger,
		retries: retries,
		memo:    make(map[string]memoEntry),
	}
}

// Load fetches the source and returns its raw records. An unchanged remote
// source answers the conditional request with 304 and returns the memoized
// parse without a download; an unchanged body (same identity, same content
// hash) likewise returns the memoized parse.
func (l *Loader) Load(ctx context.Context, src Source) ([]domain.RawRecord, error) {
	identity := src.Identity()

	l.mu.Lock()
	prev, hasPrev := l.memo[identity]
	l.mu.Unlock()

	res, err := l.fetch(ctx, src, prev, hasPrev)
	if err != nil {
		return nil, err
	}

	if res.notModified {
		if !hasPrev {
			return nil, fmt.Errorf("%w: %s answered 304 to an unconditional request", ErrSourceUnavailable, src.URL)
		}
		l.logger.Debug("raw load revalidated, source unchanged", "source", identity, "rows", len(prev.records))
		return prev.records, nil
	}

	hash := contentHash(res.data)
	if hasPrev && prev.contentHash == hash {
		l.mu.Lock()
		prev.validators = res.validators
		l.memo[identity] = prev
		l.mu.Unlock()
		l.logger.Debug("raw load memo hit", "source", identity, "rows", len(prev.records))
		return prev.records, nil
	}

	records, err := parseCSV(res.data)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.memo[identity] = memoEntry{contentHash: hash, records: records, validators: res.validators}
	l.mu.Unlock()

	l.logger.Info("raw extract loaded", "source", identity, "rows", len(records))
	return records, nil
}

// Forget drops the memo entry for a source, forcing the next Load to re-parse.
func (l *Loader) Forget(src Source) {
	l.mu.Lock()
	delete(l.memo, src.Identity())
	l.mu.Unlock()
}

func (l *Loader) fetch(ctx context.Context, src Source, prev memoEntry, hasPrev bool) (fetchResult, error) {
	if src.URL != "" {
		// Only a memoized entry makes a 304 servable, so only then is the
		// request conditional.
		var cond validators
		if hasPrev {
			cond = prev.validators
		}
		return l.fetchRemote(ctx, src.URL, cond)
	}
	if src.Path != "" {
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return fetchResult{}, fmt.Errorf("%w: read %s: %v", ErrSourceUnavailable, src.Path, err)
		}
		return fetchResult{data: data}, nil
	}
	return fetchResult{}, fmt.Errorf("%w: source has neither URL nor path", ErrSourceUnavailable)
}

// fetchRemote downloads the extract, retrying transient failures with
// exponential backoff: start at 200ms, double each retry, cap at 5s.
func (l *Loader) fetchRemote(ctx context.Context, url string, cond validators) (fetchResult, error) {
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	var lastErr error
	for attempt := 0; attempt <= l.retries; attempt++ {
		if attempt > 0 {
			l.logger.Warn("fetch retry", "url", url, "attempt", attempt, "error", lastErr)
			if !sleepWithContext(ctx, backoff) {
				return fetchResult{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, ctx.Err())
			}
			backoff = nextBackoff(backoff, maxBackoff)
		}

		res, err := l.get(ctx, url, cond)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return fetchResult{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, lastErr)
}

func (l *Loader) get(ctx context.Context, url string, cond validators) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetchResult{}, err
	}
	if cond.etag != "" {
		req.Header.Set("If-None-Match", cond.etag)
	}
	if cond.lastModified != "" {
		req.Header.Set("If-Modified-Since", cond.lastModified)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return fetchResult{notModified: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return fetchResult{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchResult{}, err
	}
	return fetchResult{
		data: data,
		validators: validators{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
		},
	}, nil
}

func contentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
