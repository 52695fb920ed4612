package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	crossrefBaseURL     = "https://api.crossref.org/works"
	crossrefBatchSize   = 128
	crossrefMaxQueryLen = 3500
	crossrefMaxBody     = 64 << 20
)

// Fetcher loads metadata records for DOIs.
type Fetcher interface {
	Fetch(ctx context.Context, dois []string) ([]*Record, error)
}

// CrossrefClient fetches works from the Crossref REST API, packing as many
// DOIs into one filter query as the URL allows. A failing query is bisected
// until the offending DOI is isolated and skipped.
type CrossrefClient struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	normalizer Normalizer
	userAgent  string
	logger     *slog.Logger
}

type CrossrefOption func(*CrossrefClient)

func WithBaseURL(u string) CrossrefOption {
	return func(c *CrossrefClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func WithHTTPClient(h *http.Client) CrossrefOption {
	return func(c *CrossrefClient) {
		c.http = h
	}
}

// WithRate sets the request rate. Crossref asks anonymous clients to stay
// around one request per second.
func WithRate(every time.Duration, burst int) CrossrefOption {
	return func(c *CrossrefClient) {
		c.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// WithMailto identifies the client, which Crossref rewards with a better pool.
func WithMailto(email string) CrossrefOption {
	return func(c *CrossrefClient) {
		if email != "" {
			c.userAgent = "litgraph (mailto:" + email + ")"
		}
	}
}

func WithCrossrefLogger(logger *slog.Logger) CrossrefOption {
	return func(c *CrossrefClient) {
		c.logger = logger
	}
}

func NewCrossrefClient(n Normalizer, opts ...CrossrefOption) *CrossrefClient {
	c := &CrossrefClient{
		baseURL:    crossrefBaseURL,
		http:       &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		normalizer: n,
		userAgent:  "litgraph",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the records Crossref knows for dois. DOIs containing a comma
// cannot be expressed in a filter and are fetched one by one.
func (c *CrossrefClient) Fetch(ctx context.Context, dois []string) ([]*Record, error) {
	var listed, single []string
	for _, doi := range dois {
		if strings.Contains(doi, ",") {
			single = append(single, doi)
		} else {
			listed = append(listed, doi)
		}
	}

	var out []*Record
	for pos := 0; pos < len(listed); {
		count := fitQuery(listed[pos:])
		for {
			batch := listed[pos : pos+count]
			records, err := c.fetchList(ctx, batch)
			if err == nil {
				out = append(out, records...)
				pos += count
				break
			}
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			if count > 1 {
				count /= 2
				continue
			}
			c.logger.WarnContext(ctx, "crossref query failed", "doi", batch[0], "error", err)
			pos++
			break
		}
	}

	for _, doi := range single {
		r, err := c.fetchOne(ctx, doi)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			c.logger.WarnContext(ctx, "crossref query failed", "doi", doi, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// fitQuery returns how many leading dois fit into one filter query.
func fitQuery(dois []string) int {
	count, length := 0, 0
	for _, doi := range dois {
		size := len(url.QueryEscape("doi:" + doi + ","))
		if count > 0 && (count == crossrefBatchSize || length+size > crossrefMaxQueryLen) {
			break
		}
		count++
		length += size
	}
	return count
}

func (c *CrossrefClient) fetchList(ctx context.Context, dois []string) ([]*Record, error) {
	filters := make([]string, len(dois))
	for i, doi := range dois {
		filters[i] = "doi:" + doi
	}
	q := url.Values{}
	q.Set("filter", strings.Join(filters, ","))
	q.Set("rows", "1000")
	body, err := c.get(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	records, total, bad, err := ParseCrossrefList(body, c.normalizer)
	if err != nil {
		return nil, err
	}
	if total > len(records)+len(bad) {
		c.logger.WarnContext(ctx, "crossref response did not fit into one page", "total", total)
	}
	for _, e := range bad {
		c.logger.DebugContext(ctx, "crossref work skipped", "error", e)
	}
	return records, nil
}

func (c *CrossrefClient) fetchOne(ctx context.Context, doi string) (*Record, error) {
	body, err := c.get(ctx, c.baseURL+"/"+url.PathEscape(doi))
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Status      string          `json:"status"`
		MessageType string          `json:"message-type"`
		Message     json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode crossref response: %w", err)
	}
	if envelope.Status != "ok" || envelope.MessageType != "work" {
		return nil, fmt.Errorf("unexpected crossref response: status %q, type %q", envelope.Status, envelope.MessageType)
	}
	return ParseCrossrefWork(envelope.Message, c.normalizer)
}

func (c *CrossrefClient) get(ctx context.Context, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build crossref request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crossref request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crossref request: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, crossrefMaxBody))
	if err != nil {
		return nil, fmt.Errorf("read crossref response: %w", err)
	}
	return body, nil
}
