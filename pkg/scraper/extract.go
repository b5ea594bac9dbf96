package scraper

import (
	"bytes"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

var (
	contentSelectors = []string{
		"article",
		"main",
		"[role=main]",
		".article-body",
		".story-body",
		".content",
		"#content",
	}

	blockSelector = "p, h1, h2, h3, h4, h5, h6, li, blockquote, pre"

	noisePatterns = []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}
)

// extractMainContent returns the article text with one paragraph per block
// element, paragraphs separated by a blank line.
func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, footer, aside, form, iframe").Remove()

	var root *goquery.Selection
	for _, selector := range contentSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			root = selected.First()
			break
		}
	}

	// Fallback to body if no main content found
	if root == nil {
		root = doc.Find("body")
	}

	var paragraphs []string
	root.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// nested blocks are covered by their outermost block
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if text := cleanContent(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	if len(paragraphs) == 0 {
		return cleanContent(root.Text())
	}
	return strings.Join(paragraphs, "\n\n")
}

// cleanContent collapses whitespace and strips boilerplate phrases.
func cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

// cleanParagraphs keeps paragraph breaks of plain text while cleaning each one.
func cleanParagraphs(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = cleanContent(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return cleanParagraphs(buf.String()), nil
}
