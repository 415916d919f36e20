// Package core provides the shared types, interfaces, and error taxonomy
// for the modelbridge backend routing layer.
package core

import "time"

// BackendKind identifies one of the interchangeable language-model backends.
type BackendKind string

const (
	// BackendOpenAI is the vendor-direct chat API backend.
	BackendOpenAI BackendKind = "openai"
	// BackendOpenRouter is the aggregator backend exposing pricing and
	// context metadata per model.
	BackendOpenRouter BackendKind = "openrouter"
	// BackendHostModel is the host-provided model capability. Its
	// availability must be probed; it may simply not exist in the
	// running environment.
	BackendHostModel BackendKind = "hostmodel"
)

// Valid reports whether k names a known backend kind.
func (k BackendKind) Valid() bool {
	switch k {
	case BackendOpenAI, BackendOpenRouter, BackendHostModel:
		return true
	}
	return false
}

// AuthStatus is the cached authentication state of a backend.
type AuthStatus string

const (
	AuthUnknown         AuthStatus = "unknown"
	AuthAuthenticated   AuthStatus = "authenticated"
	AuthUnauthenticated AuthStatus = "unauthenticated"
)

// BackendConfig is the per-backend record owned by the external
// configuration store. The core reads it and writes back authentication
// status and model selection after verification.
type BackendConfig struct {
	Kind          BackendKind `json:"kind"`
	Credential    string      `json:"credential,omitempty"`
	SelectedModel string      `json:"selected_model,omitempty"`
	AuthStatus    AuthStatus  `json:"auth_status,omitempty"`
}

// ModelPricing holds per-token costs reported by a backend's discovery
// endpoint. Zero values mean the backend does not publish pricing.
type ModelPricing struct {
	Prompt     float64 `json:"prompt"`
	Completion float64 `json:"completion"`
}

// ModelDescriptor describes one model offered by a backend. Descriptors
// are immutable once constructed from a discovery response.
type ModelDescriptor struct {
	ID            string       `json:"id"`
	DisplayName   string       `json:"display_name"`
	ContextLength int          `json:"context_length,omitempty"`
	Pricing       ModelPricing `json:"pricing"`
	Capabilities  []string     `json:"capabilities,omitempty"`
}

// Role is the speaker role of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// WireRole maps a role to the value expected by the chat-completions wire
// format. Unknown speakers default to "user".
func (r Role) WireRole() string {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return string(r)
	}
	return string(RoleUser)
}

// MessagePart is one typed part of a multi-part message content.
type MessagePart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ChatMessage is a single message handed to the adapters. Produced by the
// external prompt-rendering collaborator; adapters treat it as read-only.
type ChatMessage struct {
	Role    Role          `json:"role"`
	Content string        `json:"content"`
	Parts   []MessagePart `json:"parts,omitempty"`
}

// Text returns the message content, flattening typed parts when the plain
// content field is empty.
func (m ChatMessage) Text() string {
	if m.Content != "" || len(m.Parts) == 0 {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// CompletionOptions tunes one completion call. Nil pointer fields are
// omitted from the outbound request.
type CompletionOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

// CompletionRequest is the fully resolved request an adapter executes.
type CompletionRequest struct {
	Credential string
	Model      string
	Messages   []ChatMessage
	Options    CompletionOptions
}

// VerifyResult is the outcome of a credential/model verification.
type VerifyResult struct {
	Authenticated bool              `json:"authenticated"`
	Models        []ModelDescriptor `json:"models"`
	// VerifiedAt is when the result was established against the backend,
	// or the cache timestamp when served from cache.
	VerifiedAt time.Time `json:"verified_at"`
	// FromCache reports whether the result was served without a
	// transport call.
	FromCache bool `json:"from_cache"`
}
