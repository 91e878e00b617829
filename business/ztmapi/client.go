// Package ztmapi provides a client for the Warsaw open data public transport api at api.um.warszawa.pl
package ztmapi

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

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
)

// DefaultBaseURL is the root of all api actions
const DefaultBaseURL = "https://api.um.warszawa.pl/api/action/"

// DefaultRetryCount is the number of attempts made for each request when none is configured
const DefaultRetryCount = 3

// ErrMissingAPIKey is returned when a client is built without an api key
var ErrMissingAPIKey = errors.New("ztm api key is required")

// APIError is a failure reported by the api itself: an error status, an error message in the response
// or a response without a usable result. Requests failing with an APIError are retried.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ztm api error from %s: %s", e.Endpoint, e.Message)
}

// TransportError is a failure to reach the api or read its response. It is not retried.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("unable to reach ztm api %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Config holds the properties needed to build a Client
type Config struct {
	APIKey string
	// RetryCount is the total number of attempts made for a request failing with an APIError
	RetryCount int
	// BaseURL defaults to DefaultBaseURL
	BaseURL string
	// HTTPClient defaults to a client with a 30 second timeout
	HTTPClient *http.Client
}

// Client makes authenticated requests against the api
type Client struct {
	apiKey     string
	retryCount int
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate
}

// NewClient builds a Client from cfg
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	retryCount := cfg.RetryCount
	if retryCount < 1 {
		retryCount = 1
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiKey:     cfg.APIKey,
		retryCount: retryCount,
		baseURL:    baseURL,
		httpClient: httpClient,
		validate:   validator.New(),
	}, nil
}

// response is the envelope wrapping every api result
type response struct {
	Error  json.RawMessage `json:"error"`
	Result json.RawMessage `json:"result"`
}

// request performs a GET against endpoint and hands the result to parse, retrying while an APIError is returned
// from either the request or parse. The last APIError is returned once all attempts are used.
func (c *Client) request(ctx context.Context,
	endpoint string,
	params url.Values,
	parse func(result json.RawMessage) error) error {

	operation := func() error {
		result, err := c.requestOnce(ctx, endpoint, params)
		if err == nil {
			err = parse(result)
		}
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(c.retryCount-1)), ctx)
	return backoff.Retry(operation, policy)
}

func (c *Client) requestOnce(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	q := make(url.Values, len(params)+1)
	for k, v := range params {
		q[k] = v
	}
	q.Set("apikey", c.apiKey)
	requestURL := c.baseURL + endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API error: %d", resp.StatusCode),
		}
	}

	var envelope response
	if err = json.Unmarshal(body, &envelope); err != nil {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("malformed response: %v", err)}
	}
	if msg, present := errorMessage(envelope.Error); present {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: msg}
	}
	if isEmptyJSON(envelope.Result) {
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: "No result in response"}
	}
	return envelope.Result, nil
}

// errorMessage returns the text of a non-empty error field
func errorMessage(raw json.RawMessage) (string, bool) {
	if isEmptyJSON(raw) || string(bytes.TrimSpace(raw)) == "false" {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg, true
	}
	return string(raw), true
}

// isEmptyJSON reports values the api uses for "nothing": absent, null, "", [] and {}
func isEmptyJSON(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`, "[]", "{}":
		return true
	}
	return false
}

// resultList checks a result holds a list. A string result is the api's way of reporting an error.
func resultList(endpoint string, result json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(result)
	switch trimmed[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, &APIError{Endpoint: endpoint, Message: fmt.Sprintf("malformed result: %v", err)}
		}
		return list, nil
	case '"':
		var msg string
		_ = json.Unmarshal(trimmed, &msg)
		return nil, &APIError{Endpoint: endpoint, Message: msg}
	}
	return nil, &APIError{Endpoint: endpoint, Message: "Unknown result type"}
}

// resultObject checks a result holds an object, the shape used by public_transport_routes
func resultObject(endpoint string, result json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(result)
	switch trimmed[0] {
	case '{':
		return trimmed, nil
	case '"':
		var msg string
		_ = json.Unmarshal(trimmed, &msg)
		return nil, &APIError{Endpoint: endpoint, Message: msg}
	}
	return nil, &APIError{Endpoint: endpoint, Message: "Unknown result type"}
}
