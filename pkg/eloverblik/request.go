package eloverblik

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const tokenPath = "/api/1/token"

// envelope is the wrapper every API response body comes in.
type envelope struct {
	Result json.RawMessage `json:"result"`
}

// meteringPointsBody is the POST body shared by every ID-list endpoint.
type meteringPointsBody struct {
	MeteringPoints struct {
		MeteringPoint []string `json:"meteringPoint"`
	} `json:"meteringPoints"`
}

func newMeteringPointsBody(ids []string) *meteringPointsBody {
	b := &meteringPointsBody{}
	b.MeteringPoints.MeteringPoint = ids
	return b
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty request path", ErrInvalidArgument)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, nil
}

// request sends an authenticated call and returns the unwrapped "result"
// field of the response. endpoint names the call for logs and metrics.
func (c *Client) request(ctx context.Context, endpoint, method, path string, query url.Values, body interface{}) (json.RawMessage, error) {
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	return c.do(ctx, endpoint, method, path, token, query, body)
}

// exchangeToken trades the refresh token for a new access token.
func (c *Client) exchangeToken(ctx context.Context) (string, error) {
	c.logger.Debug("Exchanging refresh token for access token")

	result, err := c.do(ctx, "token", http.MethodGet, tokenPath, c.refreshToken, nil, nil)
	if err != nil {
		return "", err
	}

	var token string
	if err := json.Unmarshal(result, &token); err != nil {
		return "", &DecodeError{Document: "token response", Field: "result", Err: err}
	}
	if token == "" {
		return "", missingField("token response", "result")
	}

	c.metrics.tokenRefreshed()
	return token, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path, bearer string, query url.Values, body interface{}) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrRequest, method, path, err)
		}
	}

	requestID := uuid.NewString()
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(bearer).
		SetHeader("X-Request-ID", requestID)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	fields := logrus.Fields{
		"request_id": requestID,
		"endpoint":   endpoint,
		"method":     method,
		"path":       path,
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	duration := time.Since(start)
	fields["duration"] = duration

	if err != nil {
		c.metrics.observe(endpoint, method, 0, duration)
		c.logger.WithFields(fields).WithError(err).Error("Eloverblik request failed")
		return nil, fmt.Errorf("%w: %s %s: %v", ErrRequest, method, path, err)
	}

	c.metrics.observe(endpoint, method, resp.StatusCode(), duration)
	fields["status"] = resp.StatusCode()

	if !resp.IsSuccess() {
		c.logger.WithFields(fields).Warn("Eloverblik request returned non-success status")
		return nil, &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       resp.Body(),
		}
	}

	c.logger.WithFields(fields).Debug("Eloverblik request completed")

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, &DecodeError{Document: endpoint + " response", Err: err}
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil, missingField(endpoint+" response", "result")
	}
	return env.Result, nil
}
