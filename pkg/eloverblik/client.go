package eloverblik

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	ProductionURL    = "https://api.eloverblik.dk/CustomerApi"
	PreproductionURL = "https://apipreprod.eloverblik.dk/CustomerApi"

	// DateLayout is the layout of the date segments in meter data paths.
	DateLayout = "2006-01-02"

	// Version is sent in the User-Agent header.
	Version = "0.3.0"
)

// Client is a client for the Eloverblik customer API. It is safe for use
// by multiple goroutines; calls are never retried.
type Client struct {
	refreshToken string
	baseURL      string

	http    *resty.Client
	tokens  *tokenSource
	logger  *logrus.Logger
	metrics *Metrics
	limiter *rate.Limiter
}

// Option configures a Client at construction.
type Option func(*Client)

// WithPreproduction points the client at the pre-production environment.
func WithPreproduction() Option {
	return func(c *Client) { c.baseURL = PreproductionURL }
}

// WithBaseURL overrides the API base URL, e.g. for a local test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient sets the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = resty.NewWithClient(hc) }
}

// WithLogger sets the logger for request logging. By default nothing is logged.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics reports request counts and latencies to m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRateLimit throttles outgoing requests to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// New creates a client that authenticates with refreshToken. The token is
// exchanged for an access token lazily on the first call.
func New(refreshToken string, opts ...Option) (*Client, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token is required", ErrInvalidArgument)
	}

	c := &Client{
		refreshToken: refreshToken,
		baseURL:      ProductionURL,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = resty.New()
	}
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.SetOutput(io.Discard)
	}

	c.http.
		SetBaseURL(c.baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "eloverblik-go/"+Version)
	c.tokens = newTokenSource(c.exchangeToken)

	return c, nil
}

// BaseURL returns the API base URL chosen at construction.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListMeteringPoints returns the raw metering point objects linked to the
// account. With includeAll false only points with a relation are returned.
func (c *Client) ListMeteringPoints(ctx context.Context, includeAll bool) ([]json.RawMessage, error) {
	query := url.Values{}
	query.Set("includeAll", strconv.FormatBool(includeAll))

	result, err := c.request(ctx, "meteringpoints", http.MethodGet, "/api/1/meteringpoints/meteringpoints", query, nil)
	if err != nil {
		return nil, err
	}

	var points []json.RawMessage
	if err := json.Unmarshal(result, &points); err != nil {
		return nil, &DecodeError{Document: "meteringpoints response", Field: "result", Err: err}
	}
	return points, nil
}

// GetMeteringPointDetails returns the raw detail object of each metering point.
func (c *Client) GetMeteringPointDetails(ctx context.Context, ids []string) ([]json.RawMessage, error) {
	return c.postResults(ctx, "getdetails", "/api/1/meteringpoints/meteringpoint/getdetails", ids)
}

// GetMeteringPointCharges returns the raw charge (tariff, fee, subscription)
// object of each metering point.
func (c *Client) GetMeteringPointCharges(ctx context.Context, ids []string) ([]json.RawMessage, error) {
	return c.postResults(ctx, "getcharges", "/api/1/meteringpoints/meteringpoint/getcharges", ids)
}

// GetTimeSeries returns interval data between the start and end dates at
// the given aggregation. Only the date part of start and end is sent.
// The aggregation name is matched case-insensitively, so
// Aggregation("hour") is accepted as Hour.
func (c *Client) GetTimeSeries(ctx context.Context, ids []string, start, end time.Time, agg Aggregation) ([]TimeSeries, error) {
	if err := validateIDs(ids); err != nil {
		return nil, err
	}
	agg, err := ParseAggregation(string(agg))
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/api/1/meterdata/gettimeseries/%s/%s/%s",
		start.Format(DateLayout), end.Format(DateLayout), agg)

	result, err := c.request(ctx, "gettimeseries", http.MethodPost, path, nil, newMeteringPointsBody(ids))
	if err != nil {
		return nil, err
	}
	return decodeMarketDocuments(result)
}

// GetMeterReadings returns the register readings between the start and end dates.
func (c *Client) GetMeterReadings(ctx context.Context, ids []string, start, end time.Time) ([]MeterReading, error) {
	if err := validateIDs(ids); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/api/1/meterdata/getmeterreadings/%s/%s",
		start.Format(DateLayout), end.Format(DateLayout))

	result, err := c.request(ctx, "getmeterreadings", http.MethodPost, path, nil, newMeteringPointsBody(ids))
	if err != nil {
		return nil, err
	}

	items, err := unwrapResults("getmeterreadings", result)
	if err != nil {
		return nil, err
	}
	readings := make([]MeterReading, 0, len(items))
	for _, item := range items {
		mr, err := DecodeMeterReading(item)
		if err != nil {
			return nil, err
		}
		readings = append(readings, mr)
	}
	return readings, nil
}

func (c *Client) postResults(ctx context.Context, endpoint, path string, ids []string) ([]json.RawMessage, error) {
	if err := validateIDs(ids); err != nil {
		return nil, err
	}

	result, err := c.request(ctx, endpoint, http.MethodPost, path, nil, newMeteringPointsBody(ids))
	if err != nil {
		return nil, err
	}
	return unwrapResults(endpoint, result)
}

func validateIDs(ids []string) error {
	if ids == nil {
		return fmt.Errorf("%w: metering point ids must be a list", ErrInvalidArgument)
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one metering point id is required", ErrInvalidArgument)
	}
	for i, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: metering point id at index %d is empty", ErrInvalidArgument, i)
		}
	}
	return nil
}
