package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRemoteVerifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("apikey") != "anon-key" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_, _ = w.Write([]byte(`{"id":"u-1","email":"Owner@Example.com"}`))
		case "Bearer no-email":
			_, _ = w.Write([]byte(`{"id":"u-2"}`))
		case "Bearer boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	verifier := NewRemoteVerifier(server.URL+"/", "anon-key", server.Client())

	identity, err := verifier.Verify(context.Background(), "good")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.Email != "Owner@Example.com" || identity.Subject != "u-1" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	if _, err := verifier.Verify(context.Background(), "bad"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for rejected token, got %v", err)
	}
	if _, err := verifier.Verify(context.Background(), "no-email"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for user without email, got %v", err)
	}
	if _, err := verifier.Verify(context.Background(), "boom"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable for 500, got %v", err)
	}
}

func TestRemoteVerifierUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	verifier := NewRemoteVerifier(url, "", nil)
	if _, err := verifier.Verify(context.Background(), "token"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}
