// Package portal downloads recorded documents from the county public-search portal.
package portal

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Download stages reported on DownloadError.
const (
	StageLaunch   = "launch"
	StageAuth     = "auth"
	StageSearch   = "search"
	StageDownload = "download"
)

// Downloader fetches up to limit documents matching query into dir and returns
// their paths.
type Downloader interface {
	Download(ctx context.Context, query string, limit int, dir string) ([]string, error)
}

// DownloadError wraps any failure while fetching documents.
type DownloadError struct {
	Stage string
	Err   error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Stage, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

var (
	unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	nonSlugChars    = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// QuerySlug makes a short filesystem-safe token from a search query.
func QuerySlug(query string) string {
	slug := nonSlugChars.ReplaceAllString(query, "")
	slug = whitespaceRun.ReplaceAllString(strings.TrimSpace(slug), "_")
	if len(slug) > 50 {
		slug = slug[:50]
	}
	if slug == "" {
		slug = "query"
	}
	return slug
}

const maxFileNameBytes = 200

// SanitizeFileName replaces characters that are unsafe in file names and caps the length.
func SanitizeFileName(name string) string {
	name = unsafeFileChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if len(name) <= maxFileNameBytes {
		return name
	}
	n := maxFileNameBytes
	for n > 0 && !utf8.RuneStart(name[n]) {
		n--
	}
	return name[:n]
}

// DocumentFileName names the n-th (1-based) download for query.
func DocumentFileName(n int, query, suggested string) string {
	safe := SanitizeFileName(suggested)
	if safe == "" || safe == "." || safe == ".." {
		safe = fmt.Sprintf("document_%d.pdf", n)
	}
	return fmt.Sprintf("%02d_%s__%s", n, QuerySlug(query), safe)
}

// ResultsURL builds the quick-search results URL with OCR text search enabled.
// The recorded date range runs from the portal's earliest record to now.
func ResultsURL(baseURL, query string, now time.Time) string {
	q := strings.Trim(strings.TrimSpace(query), `"'`)
	params := url.Values{}
	params.Set("department", "RP")
	params.Set("keywordSearch", "false")
	params.Set("recordedDateRange", "18600626,"+now.Format("20060102"))
	params.Set("searchOcrText", "true")
	params.Set("searchType", "quickSearch")
	params.Set("searchValue", q)
	return strings.TrimRight(baseURL, "/") + "/results?" + params.Encode()
}
