package token

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/foxseedlab/voicedesk/internal/token"
)

func TestIssueCredential_Success(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"credential":"cred-123"}`))
	}))
	defer server.Close()

	issuer := NewHTTPIssuer(server.URL, nil)
	cred, err := issuer.IssueCredential(context.Background(), "gw-agent-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred != "cred-123" {
		t.Fatalf("unexpected credential: %s", cred)
	}
	if !strings.Contains(gotBody, `"agent_id":"gw-agent-1"`) {
		t.Fatalf("unexpected request body: %s", gotBody)
	}
}

func TestIssueCredential_AcceptsSignedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"signed_url":"wss://gw.example.com/conv?token=abc"}`))
	}))
	defer server.Close()

	cred, err := NewHTTPIssuer(server.URL, nil).IssueCredential(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred != "wss://gw.example.com/conv?token=abc" {
		t.Fatalf("unexpected credential: %s", cred)
	}
}

func TestIssueCredential_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("nope"))
	}))
	defer server.Close()

	_, err := NewHTTPIssuer(server.URL, nil).IssueCredential(context.Background(), "a")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestIssueCredential_MissingField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"credential":"  "}`))
	}))
	defer server.Close()

	_, err := NewHTTPIssuer(server.URL, nil).IssueCredential(context.Background(), "a")
	if !errors.Is(err, token.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}
