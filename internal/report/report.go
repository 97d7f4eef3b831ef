// Package report assembles the per-job title report.
package report

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Section is one document's contribution to the report.
type Section struct {
	DocumentName string
	Backend      string
	Score        float64
	Analysis     string
}

// Input is everything needed to build a report.
type Input struct {
	JobID       string
	Query       string
	GeneratedAt time.Time
	Sections    []Section
}

// BuildMarkdown renders the report as markdown: a header block followed by one
// section per document in input order.
func BuildMarkdown(in Input) string {
	var b strings.Builder
	b.WriteString("# Property Analysis Report\n\n")
	fmt.Fprintf(&b, "- **Query:** %s\n", in.Query)
	if in.JobID != "" {
		fmt.Fprintf(&b, "- **Job:** %s\n", in.JobID)
	}
	fmt.Fprintf(&b, "- **Generated:** %s\n", in.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Documents analyzed:** %d\n", len(in.Sections))

	for i, s := range in.Sections {
		fmt.Fprintf(&b, "\n---\n\n## Document %d: %s\n\n", i+1, s.DocumentName)
		fmt.Fprintf(&b, "_OCR source: %s (quality %.2f)_\n\n", s.Backend, s.Score)
		analysis := strings.TrimSpace(s.Analysis)
		if analysis == "" {
			analysis = "Not Available"
		}
		b.WriteString(analysis)
		b.WriteString("\n")
	}
	return b.String()
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// RenderHTML converts report markdown to a standalone HTML page.
func RenderHTML(title, source string) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(source), &body); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	var page strings.Builder
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString(title))
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.String(), nil
}
