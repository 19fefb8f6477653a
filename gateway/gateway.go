// Package gateway provides the HTTP client for the EmailPilot metrics/tool
// gateway. It exposes one logical operation — Invoke(tool, client, params) —
// and maps gateway responses onto the domain error taxonomy so the executor's
// retry policy can classify failures without inspecting HTTP details.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	eperrors "github.com/emailpilot/epctl/pkg/errors"
	"github.com/emailpilot/epctl/pkg/logging"
)

// Default client settings.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultUserAgent      = "epctl-gateway-client"
	maxErrorBodyBytes     = 2048
)

// Invoker is the single capability the query core consumes from the gateway.
// The executor depends on this interface, not the concrete client, so tests
// plug in function-backed fakes.
type Invoker interface {
	// Invoke issues one logical gateway call and returns the raw JSON
	// payload, or a classified error.
	Invoke(ctx context.Context, tool, clientID string, params map[string]interface{}) (json.RawMessage, error)
}

// KeyResolver supplies per-client API keys. A missing key surfaces as
// eperrors.ErrNoAPIKey.
type KeyResolver interface {
	GetClientKey(clientID string) (string, error)
}

// Options configures the Client.
type Options struct {
	// BaseURL is the gateway root, e.g. "https://gateway.emailpilot.dev".
	BaseURL string

	// RequestTimeout bounds each individual HTTP call.
	RequestTimeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// DefaultOptions returns Options with default values.
func DefaultOptions(baseURL string) *Options {
	return &Options{
		BaseURL:        baseURL,
		RequestTimeout: DefaultRequestTimeout,
		UserAgent:      DefaultUserAgent,
	}
}

// toolRoute maps a logical tool name onto the gateway's REST surface.
type toolRoute struct {
	method string
	path   string
}

// toolRoutes is the catalog of tools this client can invoke.
var toolRoutes = map[string]toolRoute{
	"campaigns.list":    {method: http.MethodGet, path: "/api/v1/campaigns"},
	"segments.list":     {method: http.MethodGet, path: "/api/v1/segments"},
	"metrics.aggregate": {method: http.MethodPost, path: "/api/v1/metric-aggregates"},
}

// Client is the HTTP implementation of Invoker.
type Client struct {
	opts *Options
	keys KeyResolver
	http *http.Client
	log  logging.Logger
}

// NewClient creates a gateway client. keys may not be nil; log may be nil.
func NewClient(opts *Options, keys KeyResolver, log logging.Logger) *Client {
	if opts == nil {
		opts = DefaultOptions("")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.RequestTimeout}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Client{opts: opts, keys: keys, http: httpClient, log: log}
}

// Invoke issues one gateway call. Params become query parameters for GET
// routes and the JSON body for POST routes. Errors are classified: 429 and
// 5xx are transient, other non-2xx are permanent, context deadline maps to
// the gateway-timeout sentinel.
func (c *Client) Invoke(ctx context.Context, tool, clientID string, params map[string]interface{}) (json.RawMessage, error) {
	route, ok := toolRoutes[tool]
	if !ok {
		return nil, eperrors.NewPermanentError(eperrors.CodeNotFound,
			fmt.Sprintf("unknown tool %q", tool), eperrors.ErrNotFound)
	}

	apiKey, err := c.keys.GetClientKey(clientID)
	if err != nil {
		return nil, eperrors.NewPermanentError(eperrors.CodeUnauthorized,
			fmt.Sprintf("resolving API key for client %q", clientID), err)
	}

	req, err := c.buildRequest(ctx, route, clientID, apiKey, params)
	if err != nil {
		return nil, eperrors.NewPermanentError(eperrors.CodeBadRequest, "building gateway request", err)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, eperrors.NewTransientError(eperrors.CodeGatewayTimeout,
				fmt.Sprintf("%s %s timed out", route.method, route.path), eperrors.ErrGatewayTimeout)
		}
		return nil, eperrors.NewTransientError(eperrors.CodeGatewayUnavailable,
			fmt.Sprintf("%s %s failed", route.method, route.path), err)
	}
	defer resp.Body.Close()

	c.log.Debug("gateway call",
		logging.F("tool", tool),
		logging.F("status", resp.StatusCode),
		logging.F("elapsed", time.Since(started)))

	if err := classifyStatus(resp, tool); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eperrors.NewTransientError(eperrors.CodeGatewayUnavailable, "reading gateway response", err)
	}
	if !json.Valid(body) {
		return nil, eperrors.NewPermanentError(eperrors.CodeMalformedResponse,
			fmt.Sprintf("tool %q returned invalid JSON", tool), nil)
	}
	return body, nil
}

func (c *Client) buildRequest(ctx context.Context, route toolRoute, clientID, apiKey string, params map[string]interface{}) (*http.Request, error) {
	target := strings.TrimRight(c.opts.BaseURL, "/") + route.path

	var body io.Reader
	if route.method == http.MethodPost {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding params: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, route.method, target, body)
	if err != nil {
		return nil, err
	}

	if route.method == http.MethodGet && len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, fmt.Sprintf("%v", v))
		}
		req.URL.RawQuery = values.Encode()
	}

	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("X-Client-ID", clientID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// classifyStatus maps non-2xx responses onto the error taxonomy.
func classifyStatus(resp *http.Response, tool string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet := readSnippet(resp.Body)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return eperrors.NewTransientError(eperrors.CodeRateLimited,
			fmt.Sprintf("tool %q rate limited", tool), eperrors.ErrRateLimited)
	case resp.StatusCode >= 500:
		return eperrors.NewTransientError(eperrors.CodeGatewayUnavailable,
			fmt.Sprintf("tool %q returned %d: %s", tool, resp.StatusCode, snippet), eperrors.ErrGatewayUnavailable)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return eperrors.NewPermanentError(eperrors.CodeUnauthorized,
			fmt.Sprintf("tool %q rejected credentials", tool), nil)
	case resp.StatusCode == http.StatusNotFound:
		return eperrors.NewPermanentError(eperrors.CodeNotFound,
			fmt.Sprintf("tool %q not found on gateway", tool), eperrors.ErrNotFound)
	default:
		return eperrors.NewPermanentError(eperrors.CodeBadRequest,
			fmt.Sprintf("tool %q returned %d: %s", tool, resp.StatusCode, snippet), nil)
	}
}

func readSnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Ping checks gateway reachability via the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	target := strings.TrimRight(c.opts.BaseURL, "/") + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway health returned %d", resp.StatusCode)
	}
	return nil
}
