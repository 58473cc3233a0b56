package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

// Post is one social post.
type Post struct {
	ID        string
	URL       string
	Caption   string
	Timestamp time.Time
}

// FeedSocialClient reads a handle's posts from an RSS/Atom bridge. The
// template holds one %s for the url-escaped handle.
type FeedSocialClient struct {
	template string
	parser   *gofeed.Parser
}

func NewFeedSocialClient(urlTemplate string, timeout time.Duration) *FeedSocialClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	parser := gofeed.NewParser()
	parser.UserAgent = "casting-aggregator/1.0"
	parser.Client = &http.Client{Timeout: timeout}
	return &FeedSocialClient{template: urlTemplate, parser: parser}
}

func (c *FeedSocialClient) FeedURL(handle string) string {
	return fmt.Sprintf(c.template, url.PathEscape(strings.TrimPrefix(handle, "@")))
}

func (c *FeedSocialClient) ListRecentPosts(ctx context.Context, handle string, limit int) ([]Post, error) {
	if c.template == "" {
		return nil, fmt.Errorf("social feed url template is not configured")
	}
	feed, err := c.parser.ParseURLWithContext(c.FeedURL(handle), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	count := min(len(feed.Items), limit)
	posts := make([]Post, 0, count)
	for _, item := range feed.Items[:count] {
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		var ts time.Time
		if item.PublishedParsed != nil {
			ts = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			ts = *item.UpdatedParsed
		}
		caption := item.Description
		if caption == "" {
			caption = item.Content
		}
		posts = append(posts, Post{
			ID:        id,
			URL:       item.Link,
			Caption:   flattenHTML(caption),
			Timestamp: ts,
		})
	}
	return posts, nil
}

// flattenHTML reduces a feed caption to text; bridges often wrap it in markup.
func flattenHTML(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})
	lines := strings.Split(doc.Text(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// SocialClient is the capability the social provider needs.
type SocialClient interface {
	ListRecentPosts(ctx context.Context, handle string, limit int) ([]Post, error)
}

// SocialProvider polls one account per source; the locator is the handle.
type SocialProvider struct {
	client SocialClient
	limit  int
}

func NewSocialProvider(client SocialClient, limit int) *SocialProvider {
	if limit <= 0 {
		limit = 20
	}
	return &SocialProvider{client: client, limit: limit}
}

func (p *SocialProvider) Kind() constants.SourceKind { return constants.SourceKindSocial }

func (p *SocialProvider) Fetch(ctx context.Context, src entity.Source) ([]Item, error) {
	posts, err := p.client.ListRecentPosts(ctx, src.Locator, p.limit)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(posts))
	for _, post := range posts {
		items = append(items, Item{
			Key:      post.ID,
			URL:      post.URL,
			Text:     post.Caption,
			PostedAt: post.Timestamp,
		})
	}
	return items, nil
}
