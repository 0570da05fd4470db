// Package geocode wraps the Google Geocoding API: one free-text address
// query in, one best coordinate pair out.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geomatch-cli/internal/resilience"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Sentinel failures surfaced through the error chain. Both are permanent;
// ErrDenied additionally aborts the whole batch because it means the
// credential itself was rejected.
var (
	ErrZeroResults = errors.New("geocode: no results for address")
	ErrDenied      = errors.New("geocode: request denied")
)

// Result is the best coordinate pair for a geocoded address.
type Result struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
}

// Client performs address lookups.
type Client interface {
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Geocoding API client. The key is treated as an
// opaque string and sent verbatim with every request.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// geocodeResponse is the JSON response from the Google Geocoding API.
type geocodeResponse struct {
	Results      []geocodeResult `json:"results"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message"`
}

type geocodeResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

func (c *httpClient) Geocode(ctx context.Context, address string) (*Result, error) {
	params := url.Values{
		"address": {address},
		"key":     {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures bubble up raw so the transport-level
		// transient check in resilience can classify them.
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("geocode: http %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed geocodeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	return interpret(&parsed)
}

// interpret maps the provider's status field onto the failure taxonomy.
func interpret(resp *geocodeResponse) (*Result, error) {
	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, resilience.NewPermanentError(ErrZeroResults, resp.Status)
	case "REQUEST_DENIED":
		err := ErrDenied
		if resp.ErrorMessage != "" {
			err = eris.Wrap(ErrDenied, resp.ErrorMessage)
		}
		return nil, resilience.NewPermanentError(err, resp.Status)
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return nil, resilience.NewTransientError(
			eris.Errorf("geocode: status %s: %s", resp.Status, resp.ErrorMessage), 0)
	default:
		return nil, resilience.NewPermanentError(
			eris.Errorf("geocode: status %s: %s", resp.Status, resp.ErrorMessage), resp.Status)
	}

	if len(resp.Results) == 0 {
		return nil, resilience.NewPermanentError(ErrZeroResults, "EMPTY_RESULTS")
	}

	best := resp.Results[0]
	return &Result{
		Latitude:         best.Geometry.Location.Lat,
		Longitude:        best.Geometry.Location.Lng,
		FormattedAddress: best.FormattedAddress,
	}, nil
}
