package openrouter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"modelbridge/internal/backends"
	"modelbridge/internal/core"
)

func newTestAdapter(serverURL string) *Adapter {
	return NewWithOptions(backends.Options{BaseURL: serverURL, HTTPClient: http.DefaultClient})
}

func TestDiscoverModels(t *testing.T) {
	t.Run("PricingAndContextMetadata", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/models" {
				t.Errorf("Path = %q, want /models", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer or-key" {
				t.Errorf("Authorization = %q, want bearer credential", got)
			}
			if r.Header.Get("X-Title") == "" {
				t.Error("attribution headers should be set")
			}
			_, _ = w.Write([]byte(`{"data":[
				{"id":"openai/gpt-4o","name":"GPT-4o","context_length":128000,
				 "pricing":{"prompt":"0.0000025","completion":"0.00001"},
				 "architecture":{"input_modalities":["text","image"]}},
				{"id":"meta/llama-3","context_length":8192,
				 "pricing":{"prompt":"","completion":"not-a-number"}}
			]}`))
		}))
		defer server.Close()

		models, err := newTestAdapter(server.URL).DiscoverModels(context.Background(), "or-key")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(models) != 2 {
			t.Fatalf("len(models) = %d, want 2", len(models))
		}

		m := models[0]
		if m.ID != "openai/gpt-4o" || m.DisplayName != "GPT-4o" {
			t.Errorf("descriptor identity mismatch: %+v", m)
		}
		if m.ContextLength != 128000 {
			t.Errorf("ContextLength = %d, want 128000", m.ContextLength)
		}
		if m.Pricing.Prompt != 0.0000025 || m.Pricing.Completion != 0.00001 {
			t.Errorf("pricing mismatch: %+v", m.Pricing)
		}
		if len(m.Capabilities) != 2 {
			t.Errorf("Capabilities = %v, want input modalities", m.Capabilities)
		}

		// Missing name falls back to the ID; bad pricing degrades to zero.
		m = models[1]
		if m.DisplayName != "meta/llama-3" {
			t.Errorf("DisplayName = %q, want id fallback", m.DisplayName)
		}
		if m.Pricing.Prompt != 0 || m.Pricing.Completion != 0 {
			t.Errorf("unparseable pricing should be zero: %+v", m.Pricing)
		}
	})

	t.Run("RejectedCredential", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": {"message": "No auth credentials found"}}`))
		}))
		defer server.Close()

		_, err := newTestAdapter(server.URL).DiscoverModels(context.Background(), "bad")
		if !core.IsKind(err, core.ErrorKindAuthentication) {
			t.Fatalf("expected authentication error, got %v", err)
		}
	})

	t.Run("MissingCredential", func(t *testing.T) {
		_, err := newTestAdapter("http://unused").DiscoverModels(context.Background(), "")
		if !core.IsKind(err, core.ErrorKindConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
}

func TestComplete(t *testing.T) {
	t.Run("Streaming", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("Path = %q, want /chat/completions", r.URL.Path)
			}
			_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n"))
		}))
		defer server.Close()

		stream, err := newTestAdapter(server.URL).Complete(context.Background(), &core.CompletionRequest{
			Credential: "or-key",
			Model:      "openai/gpt-4o",
			Messages:   []core.ChatMessage{{Role: core.RoleUser, Content: "hi"}},
			Options:    core.CompletionOptions{Stream: true},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() { _ = stream.Close() }()

		frag, err := stream.Next()
		if err != nil || frag != "ok" {
			t.Fatalf("Next() = (%q, %v), want (ok, nil)", frag, err)
		}
		if _, err := stream.Next(); err != io.EOF {
			t.Fatalf("expected io.EOF after sentinel, got %v", err)
		}
	})

	t.Run("NonStreaming", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"full answer"}}]}`))
		}))
		defer server.Close()

		stream, err := newTestAdapter(server.URL).Complete(context.Background(), &core.CompletionRequest{
			Credential: "or-key",
			Model:      "openai/gpt-4o",
			Messages:   []core.ChatMessage{{Role: core.RoleUser, Content: "hi"}},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		frag, err := stream.Next()
		if err != nil || frag != "full answer" {
			t.Fatalf("Next() = (%q, %v), want full answer", frag, err)
		}
		if _, err := stream.Next(); err != io.EOF {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	})
}

func TestFactoryRegistration(t *testing.T) {
	adapter, err := backends.New(core.BackendOpenRouter, backends.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.Kind() != core.BackendOpenRouter {
		t.Errorf("Kind() = %q, want openrouter", adapter.Kind())
	}
}
