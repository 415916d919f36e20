// Package openai provides the vendor-direct chat API backend.
package openai

import (
	"context"
	"net/http"

	"modelbridge/internal/backends"
	"modelbridge/internal/core"
	"modelbridge/internal/pkg/llmclient"
	"modelbridge/internal/sse"
)

const defaultBaseURL = "https://api.openai.com/v1"

func init() {
	backends.Register(core.BackendOpenAI, func(opts backends.Options) core.Adapter {
		return NewWithOptions(opts)
	})
}

// Adapter implements core.Adapter for the vendor-direct backend.
type Adapter struct {
	client *llmclient.Client
}

// New creates an adapter with the default pooled transport.
func New() *Adapter {
	return NewWithOptions(backends.Options{})
}

// NewWithOptions creates an adapter honoring base URL and HTTP client
// overrides.
func NewWithOptions(opts backends.Options) *Adapter {
	cfg := llmclient.Config{
		Backend: core.BackendOpenAI,
		BaseURL: defaultBaseURL,
	}
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	a := &Adapter{}
	if opts.HTTPClient != nil {
		a.client = llmclient.NewWithHTTPClient(opts.HTTPClient, cfg, setRequestID)
	} else {
		a.client = llmclient.New(cfg, setRequestID)
	}
	return a
}

// SetBaseURL allows configuring a custom base URL for the adapter.
func (a *Adapter) SetBaseURL(url string) {
	a.client.SetBaseURL(url)
}

// Kind returns the backend kind this adapter serves.
func (a *Adapter) Kind() core.BackendKind {
	return core.BackendOpenAI
}

// setRequestID forwards the request ID from the context when present.
// The vendor requires ASCII-only values of at most 512 bytes.
func setRequestID(req *http.Request) {
	requestID := core.GetRequestID(req.Context())
	if requestID == "" || len(requestID) > 512 {
		return
	}
	for i := 0; i < len(requestID); i++ {
		if requestID[i] > 127 {
			return
		}
	}
	req.Header.Set("X-Client-Request-Id", requestID)
}

// authHeader builds the per-call bearer header. Credentials are
// per-request in this layer, never stored on the adapter.
func authHeader(credential string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + credential}
}

// modelsResponse is the wire shape of the discovery endpoint.
type modelsResponse struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

// chatRequest is the wire shape of a chat completion request.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildChatRequest maps a resolved completion request onto the wire
// format, flattening typed message parts and normalizing roles.
func buildChatRequest(req *core.CompletionRequest) *chatRequest {
	out := &chatRequest{
		Model:       req.Model,
		Stream:      req.Options.Stream,
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
		Messages:    make([]wireMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, wireMessage{
			Role:    m.Role.WireRole(),
			Content: m.Text(),
		})
	}
	return out
}

// DiscoverModels lists the models available for the credential.
func (a *Adapter) DiscoverModels(ctx context.Context, credential string) ([]core.ModelDescriptor, error) {
	if credential == "" {
		return nil, core.NewConfigurationError(core.BackendOpenAI, "credential is required")
	}

	var resp modelsResponse
	err := a.client.Do(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
		Headers:  authHeader(credential),
	}, &resp)
	if err != nil {
		return nil, err
	}

	models := make([]core.ModelDescriptor, 0, len(resp.Data))
	for _, m := range resp.Data {
		models = append(models, core.ModelDescriptor{
			ID:          m.ID,
			DisplayName: m.ID,
		})
	}
	return models, nil
}

// Complete executes a chat completion. Streaming requests return a
// decoder over the live SSE body; non-streaming requests wrap the
// single completion body as a one-fragment stream.
func (a *Adapter) Complete(ctx context.Context, req *core.CompletionRequest) (core.FragmentStream, error) {
	if req.Credential == "" {
		return nil, core.NewConfigurationError(core.BackendOpenAI, "credential is required")
	}
	if req.Model == "" {
		return nil, core.NewConfigurationError(core.BackendOpenAI, "model is required")
	}

	wireReq := llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     buildChatRequest(req),
		Headers:  authHeader(req.Credential),
	}

	if req.Options.Stream {
		body, err := a.client.DoStream(ctx, wireReq)
		if err != nil {
			return nil, err
		}
		return sse.NewDecoder(body), nil
	}

	body, err := a.client.DoRaw(ctx, wireReq)
	if err != nil {
		return nil, err
	}
	return sse.Once(core.BackendOpenAI, body)
}
