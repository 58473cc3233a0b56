package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

// Group is a chat group visible to the gateway account.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is one chat message. Text holds the body or, for media, the caption.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Timestamp time.Time `json:"-"`
	Text      string    `json:"-"`
}

type wireMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
}

// ChatGateway is an HTTP client for the chat gateway.
type ChatGateway struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func NewChatGateway(baseURL, token string, timeout time.Duration, logger *slog.Logger) *ChatGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (g *ChatGateway) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := g.get(ctx, "/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (g *ChatGateway) GetMessages(ctx context.Context, groupID string, limit int) ([]Message, error) {
	var wire []wireMessage
	q := url.Values{"count": {strconv.Itoa(limit)}}
	if err := g.get(ctx, "/messages/list/"+url.PathEscape(groupID), q, &wire); err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(wire))
	for _, w := range wire {
		text := w.Text
		if strings.TrimSpace(text) == "" {
			text = w.Caption
		}
		out = append(out, Message{
			ID:        w.ID,
			From:      w.From,
			Timestamp: time.Unix(w.Timestamp, 0).UTC(),
			Text:      text,
		})
	}
	return out, nil
}

func (g *ChatGateway) get(ctx context.Context, path string, q url.Values, into any) error {
	u := g.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	start := time.Now()
	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat gateway %s: %w", path, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			g.logger.Warn("chat.response_body_close_error", "error", err)
		}
	}(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("chat gateway %s: read body: %w", path, err)
	}
	g.logger.Debug("chat.response", "path", path, "status", resp.StatusCode, "bytes", len(body), "elapsed_ms", time.Since(start).Milliseconds())
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("chat gateway %s: status %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("chat gateway %s: decode: %w", path, err)
	}
	return nil
}

// ChatClient is the capability the chat provider needs; *ChatGateway implements it.
type ChatClient interface {
	ListGroups(ctx context.Context) ([]Group, error)
	GetMessages(ctx context.Context, groupID string, limit int) ([]Message, error)
}

// ChatProvider polls one chat group per source; the locator is the group id.
type ChatProvider struct {
	client ChatClient
	limit  int
}

func NewChatProvider(client ChatClient, limit int) *ChatProvider {
	if limit <= 0 {
		limit = 100
	}
	return &ChatProvider{client: client, limit: limit}
}

func (p *ChatProvider) Kind() constants.SourceKind { return constants.SourceKindChat }

func (p *ChatProvider) Fetch(ctx context.Context, src entity.Source) ([]Item, error) {
	msgs, err := p.client.GetMessages(ctx, src.Locator, p.limit)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, Item{
			Key:      m.ID,
			URL:      "chat://" + src.Locator + "/" + m.ID,
			Text:     m.Text,
			PostedAt: m.Timestamp,
		})
	}
	return items, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
