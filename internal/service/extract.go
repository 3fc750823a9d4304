package service

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// documentText returns the indexable text of a document body. HTML is reduced
// to its visible text with block elements kept on separate lines.
func documentText(content, contentType string) (string, error) {
	if !isHTML(content, contentType) {
		return strings.TrimSpace(content), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript, template").Remove()
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, tr, br, pre, blockquote").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n\n")
	})

	return normalizeWhitespace(doc.Text()), nil
}

func isHTML(content, contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml") {
		return true
	}
	if ct != "" {
		return false
	}
	head := strings.ToLower(strings.TrimSpace(content))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

// normalizeWhitespace collapses runs of spaces inside lines and keeps at most
// one blank line between paragraphs.
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
