package core

import "context"

// FragmentStream is a lazy, pull-based sequence of generated text
// fragments. Next returns io.EOF on a clean end; cancellation and a
// backend-terminated stream converge on the same outcome.
type FragmentStream interface {
	// Next returns the next text fragment. It returns io.EOF when the
	// stream ends, whether by the backend's termination sentinel or by
	// cancellation.
	Next() (string, error)

	// Close releases the underlying response body. Safe to call more
	// than once.
	Close() error
}

// Adapter is implemented once per backend kind. It performs model
// discovery and chat-completion calls against that backend's wire
// protocol and hides the protocol behind the shared taxonomy.
type Adapter interface {
	// Kind returns the backend kind this adapter serves.
	Kind() BackendKind

	// DiscoverModels lists the models available for the credential.
	// Fails with an authentication error on rejected credentials, a
	// format error on unparseable responses, and a network error
	// otherwise.
	DiscoverModels(ctx context.Context, credential string) ([]ModelDescriptor, error)

	// Complete executes a chat completion and returns a normalized
	// fragment stream. The stream stops producing fragments, without
	// error, once ctx is cancelled.
	Complete(ctx context.Context, req *CompletionRequest) (FragmentStream, error)
}

// AvailabilityProber is implemented by backends whose presence must be
// probed before use. Returning false is a distinct condition from an
// unauthenticated credential and involves no network authentication.
type AvailabilityProber interface {
	Available(ctx context.Context) bool
}

// CredentialFree is implemented by backends that do not require a
// credential (the host capability runs without one).
type CredentialFree interface {
	CredentialFree() bool
}
