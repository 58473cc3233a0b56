package sources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

// Page is the readable content of a web page.
type Page struct {
	Title string
	Text  string
}

// PageScraper fetches a page and extracts its main text with readability.
type PageScraper struct {
	http   *http.Client
	logger *slog.Logger
}

func NewPageScraper(timeout time.Duration, logger *slog.Logger) *PageScraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PageScraper{http: &http.Client{Timeout: timeout}, logger: logger}
}

// Scrape returns nil, nil when the page has no extractable article.
func (s *PageScraper) Scrape(ctx context.Context, pageURL string) (*Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "casting-aggregator/1.0")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			s.logger.Warn("page.response_body_close_error", "error", err)
		}
	}(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, 16<<20), u)
	if err != nil {
		s.logger.Warn("page.readability_failed", "url", pageURL, "error", err)
		return nil, nil
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil, nil
	}
	return &Page{Title: strings.TrimSpace(article.Title), Text: text}, nil
}

// Scraper is the capability the page provider needs; *PageScraper implements it.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (*Page, error)
}

// PageProvider treats each distinct version of a page as one item: the seen
// key is the url plus a digest of its text, so edits are picked up again.
type PageProvider struct {
	scraper Scraper
	now     func() time.Time
}

func NewPageProvider(scraper Scraper) *PageProvider {
	return &PageProvider{scraper: scraper, now: time.Now}
}

func (p *PageProvider) Kind() constants.SourceKind { return constants.SourceKindPage }

func (p *PageProvider) Fetch(ctx context.Context, src entity.Source) ([]Item, error) {
	page, err := p.scraper.Scrape(ctx, src.Locator)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, nil
	}
	text := page.Text
	if page.Title != "" && !strings.HasPrefix(text, page.Title) {
		text = page.Title + "\n\n" + text
	}
	sum := sha256.Sum256([]byte(text))
	return []Item{{
		Key:      src.Locator + "#" + hex.EncodeToString(sum[:8]),
		URL:      src.Locator,
		Text:     text,
		PostedAt: p.now(),
	}}, nil
}
