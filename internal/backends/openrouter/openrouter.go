// Package openrouter provides the aggregator backend. The aggregator
// fronts many upstream vendors and annotates each model with pricing and
// context-window metadata.
package openrouter

import (
	"context"
	"net/http"
	"strconv"

	"modelbridge/internal/backends"
	"modelbridge/internal/core"
	"modelbridge/internal/pkg/llmclient"
	"modelbridge/internal/sse"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"

	// The aggregator uses these attribution headers for app rankings.
	refererHeader = "https://github.com/modelbridge/modelbridge"
	titleHeader   = "modelbridge"
)

func init() {
	backends.Register(core.BackendOpenRouter, func(opts backends.Options) core.Adapter {
		return NewWithOptions(opts)
	})
}

// Adapter implements core.Adapter for the aggregator backend.
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
		Backend: core.BackendOpenRouter,
		BaseURL: defaultBaseURL,
	}
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	a := &Adapter{}
	if opts.HTTPClient != nil {
		a.client = llmclient.NewWithHTTPClient(opts.HTTPClient, cfg, setAttribution)
	} else {
		a.client = llmclient.New(cfg, setAttribution)
	}
	return a
}

// SetBaseURL allows configuring a custom base URL for the adapter.
func (a *Adapter) SetBaseURL(url string) {
	a.client.SetBaseURL(url)
}

// Kind returns the backend kind this adapter serves.
func (a *Adapter) Kind() core.BackendKind {
	return core.BackendOpenRouter
}

func setAttribution(req *http.Request) {
	req.Header.Set("HTTP-Referer", refererHeader)
	req.Header.Set("X-Title", titleHeader)
}

func authHeader(credential string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + credential}
}

// wireModel is one entry of the aggregator's discovery response. Pricing
// comes over the wire as decimal strings, per-token in USD.
type wireModel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length"`
	Pricing       struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	} `json:"pricing"`
	Architecture struct {
		InputModalities []string `json:"input_modalities"`
	} `json:"architecture"`
}

type modelsResponse struct {
	Data []wireModel `json:"data"`
}

// parsePrice converts a wire pricing string to a per-token cost. Missing
// or unparseable prices degrade to zero rather than failing discovery.
func parsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func toDescriptor(m wireModel) core.ModelDescriptor {
	name := m.Name
	if name == "" {
		name = m.ID
	}
	return core.ModelDescriptor{
		ID:            m.ID,
		DisplayName:   name,
		ContextLength: m.ContextLength,
		Pricing: core.ModelPricing{
			Prompt:     parsePrice(m.Pricing.Prompt),
			Completion: parsePrice(m.Pricing.Completion),
		},
		Capabilities: m.Architecture.InputModalities,
	}
}

// chatRequest is the wire shape of a chat completion request. The
// aggregator speaks the same chat-completions dialect as the vendor.
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

// DiscoverModels lists the aggregator's catalog for the credential,
// including pricing and context-window metadata.
func (a *Adapter) DiscoverModels(ctx context.Context, credential string) ([]core.ModelDescriptor, error) {
	if credential == "" {
		return nil, core.NewConfigurationError(core.BackendOpenRouter, "credential is required")
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
		models = append(models, toDescriptor(m))
	}
	return models, nil
}

// Complete executes a chat completion against the aggregator.
func (a *Adapter) Complete(ctx context.Context, req *core.CompletionRequest) (core.FragmentStream, error) {
	if req.Credential == "" {
		return nil, core.NewConfigurationError(core.BackendOpenRouter, "credential is required")
	}
	if req.Model == "" {
		return nil, core.NewConfigurationError(core.BackendOpenRouter, "model is required")
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
	return sse.Once(core.BackendOpenRouter, body)
}
