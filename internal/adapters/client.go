package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pulseengine/pulse/pkg/errors"
	"github.com/pulseengine/pulse/pkg/logging"
	"github.com/pulseengine/pulse/pkg/source"
)

// Client is the shared HTTP plumbing behind every provider adapter. It owns
// response classification so retry decisions are uniform across providers:
// transport failures, 429s and 5xx responses come back transient, everything
// else permanent.
type Client struct {
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate
	logger     *logging.Logger
}

// NewClient creates a provider client rooted at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		validate: validator.New(),
		logger:   logging.GetLogger(),
	}
}

// GetJSON fetches path with the given query parameters and decodes the JSON
// response into out. Errors are classified by cause so the retry layer can
// tell transient from permanent.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.NewInternalError("failed to build request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewTimeoutError(path).WithCause(err)
		}
		return errors.NewNetworkError(fmt.Sprintf("request to %s failed", path)).WithCause(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, path); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return errors.NewNetworkError(fmt.Sprintf("failed to read response from %s", path)).WithCause(err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewValidationError(fmt.Sprintf("malformed response from %s", path)).WithCause(err)
	}

	return nil
}

// ValidatePayload checks a decoded provider item against its struct tags. A
// failing item is a permanent provider contract violation, not a retry case.
func (c *Client) ValidatePayload(item interface{}) error {
	if err := c.validate.Struct(item); err != nil {
		return errors.NewValidationError("provider payload failed validation").WithCause(err)
	}
	return nil
}

// classifyStatus maps non-2xx responses onto the error taxonomy.
func classifyStatus(resp *http.Response, path string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.NewRateLimitError(fmt.Sprintf("rate limited by %s", path)).
			WithDetail("retry_after", resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.NewAuthenticationError(fmt.Sprintf("access denied by %s", path)).
			WithDetail("status", resp.Status)
	case resp.StatusCode >= 500:
		return errors.NewUpstreamError(path, fmt.Sprintf("upstream returned %s", resp.Status))
	default:
		return errors.NewValidationError(fmt.Sprintf("unexpected status %s from %s", resp.Status, path))
	}
}

// queryParams translates a source query into provider query parameters.
func queryParams(query source.Query) url.Values {
	params := url.Values{}
	if len(query.EntityIDs) > 0 {
		params.Set("entity_ids", strings.Join(query.EntityIDs, ","))
	}
	if !query.Since.IsZero() {
		params.Set("since", query.Since.Format(time.RFC3339))
	}
	return params
}
