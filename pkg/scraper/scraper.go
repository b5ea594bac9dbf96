package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/newsqa/internal/models"
	"github.com/xhad/newsqa/internal/types"
	"golang.org/x/time/rate"
)

// defaultMaxBodySize caps a single response body.
const defaultMaxBodySize = 20 << 20

type ScraperConfig struct {
	RateLimit  float64 // requests per second
	Timeout    time.Duration
	UserAgent  string
	SkipFailed bool             // continue with the fetched subset when a URL fails
	MaxBody    int64            // largest accepted response body in bytes
	OnProgress func(url string) // called before each fetch
	Logger     *slog.Logger
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.UserAgent == "" {
		config.UserAgent = "newsqa/1.0"
	}
	if config.MaxBody <= 0 {
		config.MaxBody = defaultMaxBodySize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{})
}

// FilterURLs drops empty and whitespace-only entries and trims the rest.
// Order and duplicates are kept.
func FilterURLs(urls []string) []string {
	var out []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Load fetches the readable text of every non-empty URL. It returns nil, nil
// when nothing is left after filtering.
func (s *Scraper) Load(ctx context.Context, urls []string) ([]models.Document, error) {
	valid := FilterURLs(urls)
	if len(valid) == 0 {
		return nil, nil
	}

	var (
		documents []models.Document
		lastErr   error
	)
	for _, u := range valid {
		doc, err := s.Fetch(ctx, u)
		if err != nil {
			if !s.config.SkipFailed || errors.Is(err, context.Canceled) {
				return nil, err
			}
			s.logger.Warn("skipping url", "url", u, "error", err)
			lastErr = err
			continue
		}
		documents = append(documents, doc)
	}

	if len(documents) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return documents, nil
}

// Fetch loads a single URL and extracts its readable text.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (models.Document, error) {
	fail := func(err error) (models.Document, error) {
		return models.Document{}, &types.FetchError{URL: rawURL, Err: err}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fail(err)
	}
	if !parsedURL.IsAbs() || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") || parsedURL.Host == "" {
		return fail(errors.New("not an absolute http(s) URL"))
	}

	if s.config.OnProgress != nil {
		s.config.OnProgress(rawURL)
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return fail(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("received status code %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBody+1))
	if err != nil {
		return fail(err)
	}
	if int64(len(body)) > s.config.MaxBody {
		return fail(fmt.Errorf("response body is larger than %d bytes", s.config.MaxBody))
	}

	contentType := resp.Header.Get("Content-Type")
	var title, content string
	switch kind(contentType, parsedURL.Path) {
	case "pdf":
		content, err = extractPDF(body)
		if err != nil {
			return fail(fmt.Errorf("failed to read pdf: %w", err))
		}
	case "text":
		content = cleanParagraphs(string(body))
	default:
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
		if err != nil {
			return fail(err)
		}
		title = strings.TrimSpace(doc.Find("title").First().Text())
		content = extractMainContent(doc)
	}

	if content == "" {
		return fail(errors.New("no readable text"))
	}

	s.logger.Debug("fetched url", "url", rawURL, "chars", len(content))

	return models.Document{
		URL:     rawURL,
		Title:   title,
		Content: content,
		Metadata: map[string]interface{}{
			"time":         time.Now(),
			"contentType":  contentType,
			"lastModified": resp.Header.Get("Last-Modified"),
		},
	}, nil
}

func kind(contentType, path string) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/pdf", strings.HasSuffix(strings.ToLower(path), ".pdf"):
		return "pdf"
	case mediaType == "text/plain":
		return "text"
	default:
		return "html"
	}
}
