// Package hostmodel provides the host-capability backend: a model
// runtime served by the host machine itself. Unlike the remote backends
// it may simply not exist in the running environment, so its presence is
// probed rather than authenticated, and no credential is required.
package hostmodel

import (
	"context"
	"errors"
	"net/http"
	"time"

	"modelbridge/internal/backends"
	"modelbridge/internal/core"
	"modelbridge/internal/pkg/llmclient"
	"modelbridge/internal/sse"
)

const (
	defaultBaseURL = "http://localhost:11434/v1"

	// probeTimeout bounds the availability probe so a missing runtime
	// answers quickly.
	probeTimeout = 5 * time.Second
)

func init() {
	backends.Register(core.BackendHostModel, func(opts backends.Options) core.Adapter {
		return NewWithOptions(opts)
	})
}

// Adapter implements core.Adapter for the host runtime.
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
		Backend: core.BackendHostModel,
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
	return core.BackendHostModel
}

// CredentialFree reports that the host runtime needs no credential.
func (a *Adapter) CredentialFree() bool {
	return true
}

func setRequestID(req *http.Request) {
	if requestID := core.GetRequestID(req.Context()); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
}

// authHeader builds an optional bearer header. The host runtime accepts
// but does not require one.
func authHeader(credential string) map[string]string {
	if credential == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + credential}
}

// Available probes whether the host runtime is reachable. An
// unreachable runtime is absent, not unauthenticated; the probe never
// performs network authentication.
func (a *Adapter) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var resp modelsResponse
	err := a.client.Do(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
	}, &resp)
	return err == nil
}

// markUnreachable rewrites transport failures as unavailability. The
// runtime not listening on its port means it is absent, which callers
// must distinguish from a rejected credential.
func markUnreachable(err error) error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr.Kind == core.ErrorKindNetwork && coreErr.Status == 0 {
		ue := core.NewUnavailableError(core.BackendHostModel, "host model runtime is not reachable")
		ue.Err = err
		return ue
	}
	return err
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

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

// DiscoverModels lists the models loaded into the host runtime. The
// credential is optional and forwarded only when present.
func (a *Adapter) DiscoverModels(ctx context.Context, credential string) ([]core.ModelDescriptor, error) {
	var resp modelsResponse
	err := a.client.Do(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/models",
		Headers:  authHeader(credential),
	}, &resp)
	if err != nil {
		return nil, markUnreachable(err)
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

// Complete executes a chat completion against the host runtime.
func (a *Adapter) Complete(ctx context.Context, req *core.CompletionRequest) (core.FragmentStream, error) {
	if req.Model == "" {
		return nil, core.NewConfigurationError(core.BackendHostModel, "model is required")
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
			return nil, markUnreachable(err)
		}
		return sse.NewDecoder(body), nil
	}

	body, err := a.client.DoRaw(ctx, wireReq)
	if err != nil {
		return nil, markUnreachable(err)
	}
	return sse.Once(core.BackendHostModel, body)
}
