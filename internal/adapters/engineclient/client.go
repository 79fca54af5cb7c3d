package engineclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"schedule-builder/internal/domain"
	"schedule-builder/internal/infra/metrics"
)

// ErrNotFound возвращается, если сервис не знает автора.
var ErrNotFound = domain.ErrCreatorNotFound

// Client обращается к сервисам аналитики и выбора подписей.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithToken добавляет Bearer-токен ко всем запросам.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, &domain.ConfigurationError{Key: "ENGINE_BASE_URL", Value: baseURL}
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// AnalyzeCreator запрашивает аналитический отчёт автора.
func (c *Client) AnalyzeCreator(ctx context.Context, creatorID string) (domain.AnalyticsReport, error) {
	if creatorID == "" || creatorID == "." || creatorID == ".." {
		return domain.AnalyticsReport{}, fmt.Errorf("автор %q: %w", creatorID, ErrNotFound)
	}
	var report domain.AnalyticsReport
	endpoint := "/api/v1/analytics/creators/" + url.PathEscape(creatorID)
	if err := c.post(ctx, "analyze_creator", endpoint, struct{}{}, &report); err != nil {
		return domain.AnalyticsReport{}, err
	}
	if report.CreatorID == "" {
		report.CreatorID = creatorID
	}
	return report, nil
}

type selectResponse struct {
	Captions []domain.Caption `json:"captions"`
}

// SelectCaptions запрашивает подписи-кандидаты по уровням.
func (c *Client) SelectCaptions(ctx context.Context, query domain.CaptionQuery) ([]domain.Caption, error) {
	var resp selectResponse
	if err := c.post(ctx, "select_captions", "/api/v1/captions/select", query, &resp); err != nil {
		return nil, err
	}
	return resp.Captions, nil
}

func (c *Client) post(ctx context.Context, op, endpoint string, body any, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	start := time.Now()
	err = c.do(op, req, out)
	metrics.ObserveNetworkRequest("engine", op, c.baseURL.Host, start, err)
	return err
}

// newRequest ожидает endpoint в экранированном виде.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	resolved := *c.baseURL
	basePath := strings.TrimSuffix(c.baseURL.EscapedPath(), "/")
	rawPath := path.Clean(basePath + endpoint)
	unescaped, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: %w", endpoint, err)
	}
	resolved.Path = unescaped
	resolved.RawPath = rawPath
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(op string, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return fmt.Errorf("engine %s: %w", op, ctxErr)
		}
		return domain.Transient("engine "+op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		data, readErr := io.ReadAll(resp.Body)
		if readErr == nil && len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return mapAPIError(op, resp.StatusCode, apiErr)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mapAPIError(op string, status int, err apiError) error {
	base := fmt.Errorf("engine %s: status=%d code=%s message=%s", op, status, err.Code, err.Error)
	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return domain.Transient("engine "+op, base)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, base.Error())
	default:
		return base
	}
}

var _ domain.AnalyticsService = (*Client)(nil)
var _ domain.CaptionSelector = (*Client)(nil)
