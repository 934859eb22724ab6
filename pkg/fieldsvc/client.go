package fieldsvc

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

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
)

const (
	apiKeyHeader              = "X-Api-Key"
	defaultTimeout            = 10 * time.Second
	responseBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("field service base url is required")

// Client talks to the field-service platform for stock levels, reference data
// and dealer information.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds the field-service client. The API key may be empty for local stubs.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimSpace(baseURL),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.baseURL == "" {
		return nil, errBaseURLRequired
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return client, nil
}

// References reports which of the checked ids the platform does not know.
type References struct {
	MissingLocations map[uuid.UUID]struct{}
	MissingParts     map[uuid.UUID]struct{}
}

// Known reports whether both the location and the part exist.
func (r References) Known(locationID, partID uuid.UUID) bool {
	if _, missing := r.MissingLocations[locationID]; missing {
		return false
	}
	if _, missing := r.MissingParts[partID]; missing {
		return false
	}
	return true
}

// GetAvailable returns the current available quantity of a part at a location.
// A 404 is a dependency error; an unknown stock level is never treated as zero.
func (c *Client) GetAvailable(ctx context.Context, locationID, partID uuid.UUID) (int64, error) {
	if c == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "field service client not configured")
	}
	path := fmt.Sprintf("v1/stock/%s/%s", url.PathEscape(locationID.String()), url.PathEscape(partID.String()))

	var apiResp struct {
		Available *int64 `json:"available"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &apiResp, "stock lookup"); err != nil {
		return 0, err
	}
	if apiResp.Available == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "stock lookup response missing available")
	}
	return *apiResp.Available, nil
}

// ReferencesExist checks location and part ids against the platform's reference data.
func (c *Client) ReferencesExist(ctx context.Context, locationIDs, partIDs []uuid.UUID) (References, error) {
	refs := References{
		MissingLocations: map[uuid.UUID]struct{}{},
		MissingParts:     map[uuid.UUID]struct{}{},
	}
	if c == nil {
		return refs, pkgerrors.New(pkgerrors.CodeDependency, "field service client not configured")
	}
	if len(locationIDs) == 0 && len(partIDs) == 0 {
		return refs, nil
	}

	req := struct {
		LocationIDs []uuid.UUID `json:"location_ids"`
		PartIDs     []uuid.UUID `json:"part_ids"`
	}{LocationIDs: locationIDs, PartIDs: partIDs}
	var apiResp struct {
		MissingLocationIDs []uuid.UUID `json:"missing_location_ids"`
		MissingPartIDs     []uuid.UUID `json:"missing_part_ids"`
	}
	if err := c.do(ctx, http.MethodPost, "v1/references:check", req, &apiResp, "reference check"); err != nil {
		return refs, err
	}
	for _, id := range apiResp.MissingLocationIDs {
		refs.MissingLocations[id] = struct{}{}
	}
	for _, id := range apiResp.MissingPartIDs {
		refs.MissingParts[id] = struct{}{}
	}
	return refs, nil
}

// DealerCandidates lists dealers able to supply the part to the location.
func (c *Client) DealerCandidates(ctx context.Context, locationID, partID uuid.UUID) ([]uuid.UUID, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "field service client not configured")
	}
	query := url.Values{}
	query.Set("location_id", locationID.String())
	query.Set("part_id", partID.String())

	var apiResp struct {
		DealerIDs []uuid.UUID `json:"dealer_ids"`
	}
	if err := c.do(ctx, http.MethodGet, "v1/dealers/candidates?"+query.Encode(), nil, &apiResp, "dealer candidates"); err != nil {
		return nil, err
	}
	return apiResp.DealerIDs, nil
}

// DealerTrust returns trust scores (0..100) keyed by dealer id. Dealers the
// platform has no score for are absent from the map.
func (c *Client) DealerTrust(ctx context.Context, dealerIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "field service client not configured")
	}
	scores := make(map[uuid.UUID]int, len(dealerIDs))
	if len(dealerIDs) == 0 {
		return scores, nil
	}

	req := struct {
		DealerIDs []uuid.UUID `json:"dealer_ids"`
	}{DealerIDs: dealerIDs}
	var apiResp struct {
		Scores map[string]int `json:"scores"`
	}
	if err := c.do(ctx, http.MethodPost, "v1/dealers/trust", req, &apiResp, "dealer trust"); err != nil {
		return nil, err
	}
	for raw, score := range apiResp.Scores {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dealer trust response has invalid dealer id")
		}
		if score < 0 || score > 100 {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("dealer trust score %d out of range", score))
		}
		scores[id] = score
	}
	return scores, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, op string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal "+op+" request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+op+" request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+op+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), op+" request failed")
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+op+" response")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
