// Package llmclient provides the base HTTP client shared by the backend
// adapters: request marshaling, response unmarshaling, and classification
// of non-200 responses into the core error taxonomy.
//
// The client performs no automatic retries. Retry is a caller-level
// decision, and verification call counts must stay observable.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"modelbridge/internal/core"
	"modelbridge/internal/pkg/httpclient"
)

// Config holds configuration for the backend client.
type Config struct {
	// Backend identifies the backend kind for error tagging.
	Backend core.BackendKind

	// BaseURL is the API base URL.
	BaseURL string
}

// HeaderSetter is a function that sets headers on an outbound request.
type HeaderSetter func(req *http.Request)

// Client is the base HTTP client for backend adapters.
type Client struct {
	httpClient   *http.Client
	config       Config
	headerSetter HeaderSetter
}

// New creates a new backend client with the default pooled transport.
func New(config Config, headerSetter HeaderSetter) *Client {
	return &Client{
		httpClient:   httpclient.NewDefaultHTTPClient(),
		config:       config,
		headerSetter: headerSetter,
	}
}

// NewWithHTTPClient creates a new backend client with a custom HTTP client.
// If httpClient is nil, http.DefaultClient is used.
func NewWithHTTPClient(httpClient *http.Client, config Config, headerSetter HeaderSetter) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient:   httpClient,
		config:       config,
		headerSetter: headerSetter,
	}
}

// SetBaseURL updates the base URL.
func (c *Client) SetBaseURL(url string) {
	c.config.BaseURL = url
}

// BaseURL returns the current base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Request represents an HTTP request to be made.
type Request struct {
	Method   string
	Endpoint string
	Body     interface{} // JSON marshaled if not nil
	Headers  map[string]string
}

// Do executes a request and unmarshals the response body into result.
// Non-200 statuses are classified into the error taxonomy; an
// unparseable success body is a format error.
func (c *Client) Do(ctx context.Context, req Request, result interface{}) error {
	body, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return core.NewFormatError(c.config.Backend, "failed to unmarshal response: "+err.Error(), err)
		}
	}

	return nil
}

// DoRaw executes a request and returns the raw response body.
func (c *Client) DoRaw(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewNetworkError(c.config.Backend, "failed to send request: "+err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewNetworkError(c.config.Backend, "failed to read response: "+err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, core.ClassifyHTTPStatus(c.config.Backend, resp.StatusCode, body)
	}

	return body, nil
}

// DoStream executes a streaming request, returning the raw response body
// for SSE decoding. The caller must close it.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewNetworkError(c.config.Backend, "failed to send request: "+err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			respBody = []byte("failed to read error response")
		}
		_ = resp.Body.Close()
		return nil, core.ClassifyHTTPStatus(c.config.Backend, resp.StatusCode, respBody)
	}

	return resp.Body, nil
}

// buildRequest creates an HTTP request from a Request.
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := c.config.BaseURL + req.Endpoint

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, core.NewFormatError(c.config.Backend, "failed to marshal request", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, core.NewNetworkError(c.config.Backend, "failed to create request", err)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if c.headerSetter != nil {
		c.headerSetter(httpReq)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}
