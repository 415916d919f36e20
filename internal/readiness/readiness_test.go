package readiness

import (
	"context"
	"testing"

	"modelbridge/internal/core"
)

// countingVerifier returns a Verifier that records how often it runs.
func countingVerifier(result core.VerifyResult, err error) (Verifier, *int) {
	calls := 0
	return func(ctx context.Context) (core.VerifyResult, error) {
		calls++
		return result, err
	}, &calls
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		in           Input
		verifyResult core.VerifyResult
		verifyErr    error
		want         Report
		wantCalls    int
	}{
		{
			name: "NoCredential",
			in:   Input{HasCredential: false, SelectedModel: "m", Status: core.AuthAuthenticated, ModelCount: 3},
			want: Report{
				NeedsCredential:     true,
				NeedsAuthentication: true,
				NeedsModelSelection: true,
				SkippedNetworkCheck: true,
			},
			wantCalls: 0,
		},
		{
			name:      "FullyConfiguredSkipsNetwork",
			in:        Input{HasCredential: true, SelectedModel: "m", Status: core.AuthAuthenticated, ModelCount: 3},
			want:      Report{Ready: true, SkippedNetworkCheck: true},
			wantCalls: 0,
		},
		{
			name:         "AdoptedStatusWithEmptyModelsVerifiesOnce",
			in:           Input{HasCredential: true, SelectedModel: "m", Status: core.AuthAuthenticated, ModelCount: 0},
			verifyResult: core.VerifyResult{Authenticated: true, Models: []core.ModelDescriptor{{ID: "m"}}},
			want:         Report{Ready: true},
			wantCalls:    1,
		},
		{
			name:         "AdoptedStatusRevokedCredential",
			in:           Input{HasCredential: true, SelectedModel: "m", Status: core.AuthAuthenticated, ModelCount: 0},
			verifyResult: core.VerifyResult{Authenticated: false},
			want:         Report{NeedsAuthentication: true},
			wantCalls:    1,
		},
		{
			name:         "OnlyAuthenticationMissingVerifiesOnce",
			in:           Input{HasCredential: true, SelectedModel: "m", Status: core.AuthUnknown},
			verifyResult: core.VerifyResult{Authenticated: true, Models: []core.ModelDescriptor{{ID: "m"}}},
			want:         Report{Ready: true},
			wantCalls:    1,
		},
		{
			name:         "VerifyRejectsCredential",
			in:           Input{HasCredential: true, SelectedModel: "m", Status: core.AuthUnauthenticated},
			verifyResult: core.VerifyResult{Authenticated: false},
			want:         Report{NeedsAuthentication: true},
			wantCalls:    1,
		},
		{
			name:      "ModelSelectionMissingDoesNotVerify",
			in:        Input{HasCredential: true, Status: core.AuthUnknown},
			want:      Report{NeedsAuthentication: true, NeedsModelSelection: true, SkippedNetworkCheck: true},
			wantCalls: 0,
		},
		{
			name:      "AuthenticatedButNoModelSelected",
			in:        Input{HasCredential: true, Status: core.AuthAuthenticated, ModelCount: 3},
			want:      Report{NeedsModelSelection: true, SkippedNetworkCheck: true},
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verify, calls := countingVerifier(tt.verifyResult, tt.verifyErr)

			got := Evaluate(ctx, tt.in, verify)

			if got != tt.want {
				t.Errorf("Evaluate() = %+v, want %+v", got, tt.want)
			}
			if *calls != tt.wantCalls {
				t.Errorf("verify calls = %d, want %d", *calls, tt.wantCalls)
			}
			if *calls > 1 {
				t.Error("evaluator must never verify more than once per invocation")
			}
		})
	}
}

func TestEvaluateNilVerifier(t *testing.T) {
	got := Evaluate(context.Background(), Input{
		HasCredential: true,
		SelectedModel: "m",
		Status:        core.AuthUnknown,
	}, nil)

	if got.Ready {
		t.Error("nil verifier cannot conclude ready when verification is required")
	}
	if !got.NeedsAuthentication {
		t.Error("expected NeedsAuthentication without a verifier")
	}
}
