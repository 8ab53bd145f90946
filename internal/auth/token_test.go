package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zalando/go-keyring"
)

func clearSigningEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ACTIONS_ID_TOKEN_REQUEST_URL", "")
	t.Setenv("ACTIONS_ID_TOKEN_REQUEST_TOKEN", "")
	t.Setenv("CI_JOB_JWT", "")
}

func TestDetectSigningEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		expected SigningEnvironment
	}{
		{
			name:     "github actions",
			env:      map[string]string{"ACTIONS_ID_TOKEN_REQUEST_URL": "https://token.actions.example.com"},
			expected: EnvironmentGitHub,
		},
		{
			name:     "gitlab ci",
			env:      map[string]string{"CI_JOB_JWT": "jwt-token"},
			expected: EnvironmentGitLab,
		},
		{
			name: "github wins over gitlab",
			env: map[string]string{
				"ACTIONS_ID_TOKEN_REQUEST_URL": "https://token.actions.example.com",
				"CI_JOB_JWT":                   "jwt-token",
			},
			expected: EnvironmentGitHub,
		},
		{
			name:     "local",
			env:      map[string]string{},
			expected: EnvironmentLocal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearSigningEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			if got := DetectSigningEnvironment(); got != tt.expected {
				t.Errorf("DetectSigningEnvironment() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestGitHubToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer runner-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("audience") != DefaultTokenAudience {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"value": "oidc-token"})
	}))
	defer server.Close()

	clearSigningEnv(t)
	t.Setenv("ACTIONS_ID_TOKEN_REQUEST_URL", server.URL)
	t.Setenv("ACTIONS_ID_TOKEN_REQUEST_TOKEN", "runner-token")

	client := NewTokenClient(nil)
	token, err := client.IdentityToken(context.Background(), EnvironmentGitHub)
	if err != nil {
		t.Fatalf("failed to acquire token: %v", err)
	}
	if token != "oidc-token" {
		t.Errorf("expected token 'oidc-token', got '%s'", token)
	}
}

func TestGitHubTokenEndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	clearSigningEnv(t)
	t.Setenv("ACTIONS_ID_TOKEN_REQUEST_URL", server.URL)
	t.Setenv("ACTIONS_ID_TOKEN_REQUEST_TOKEN", "runner-token")

	client := NewTokenClient(nil)
	if _, err := client.IdentityToken(context.Background(), EnvironmentGitHub); err == nil {
		t.Error("expected error for non-200 token endpoint response")
	}
}

func TestGitHubTokenEmptyValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"value": ""})
	}))
	defer server.Close()

	clearSigningEnv(t)
	t.Setenv("ACTIONS_ID_TOKEN_REQUEST_URL", server.URL)
	t.Setenv("ACTIONS_ID_TOKEN_REQUEST_TOKEN", "runner-token")

	client := NewTokenClient(nil)
	if _, err := client.IdentityToken(context.Background(), EnvironmentGitHub); err == nil {
		t.Error("expected error for empty token value")
	}
}

func TestGitHubTokenIncompleteEnvironment(t *testing.T) {
	clearSigningEnv(t)
	t.Setenv("ACTIONS_ID_TOKEN_REQUEST_URL", "https://token.actions.example.com")

	client := NewTokenClient(nil)
	if _, err := client.IdentityToken(context.Background(), EnvironmentGitHub); err == nil {
		t.Error("expected error when the request token is missing")
	}
}

func TestGitLabToken(t *testing.T) {
	clearSigningEnv(t)
	t.Setenv("CI_JOB_JWT", "gitlab-job-token")

	client := NewTokenClient(nil)
	token, err := client.IdentityToken(context.Background(), EnvironmentGitLab)
	if err != nil {
		t.Fatalf("failed to acquire token: %v", err)
	}
	if token != "gitlab-job-token" {
		t.Errorf("expected job token verbatim, got '%s'", token)
	}
}

func TestGitLabTokenMissing(t *testing.T) {
	clearSigningEnv(t)

	client := NewTokenClient(nil)
	if _, err := client.IdentityToken(context.Background(), EnvironmentGitLab); err == nil {
		t.Error("expected error when CI_JOB_JWT is missing")
	}
}

func TestLocalTokenFromStorage(t *testing.T) {
	keyring.MockInit()
	t.Setenv("HOME", t.TempDir())
	clearSigningEnv(t)

	if err := StoreToken("stored-token", "https://oauth2.sigstore.dev/auth"); err != nil {
		t.Fatalf("failed to store token: %v", err)
	}
	t.Cleanup(func() { _ = ClearStoredToken() })

	client := NewTokenClient(nil)
	token, err := client.IdentityToken(context.Background(), EnvironmentLocal)
	if err != nil {
		t.Fatalf("failed to acquire token: %v", err)
	}
	if token != "stored-token" {
		t.Errorf("expected stored token, got '%s'", token)
	}
}

func TestLocalTokenWithoutStorage(t *testing.T) {
	keyring.MockInit()
	t.Setenv("HOME", t.TempDir())
	clearSigningEnv(t)

	if err := ClearStoredToken(); err != nil {
		t.Fatalf("failed to clear token: %v", err)
	}

	client := NewTokenClient(nil)
	token, err := client.IdentityToken(context.Background(), EnvironmentLocal)
	if err != nil {
		t.Fatalf("missing local token must not be an error: %v", err)
	}
	if token != "" {
		t.Errorf("expected empty token without storage, got '%s'", token)
	}
}
