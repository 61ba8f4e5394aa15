package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bookeating/novelcondenser-go/provider"
)

func TestAdapter_Condense_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"condensed"}}]}`))
	}))
	defer srv.Close()

	a := New(srv.Client())
	params := provider.DefaultGenerationParams()
	params.TimeoutOfficial, params.TimeoutThirdParty = 2*time.Second, 2*time.Second

	req := provider.Request{
		SystemPrompt: "condense this",
		UserText:     "a very long chapter",
		Credential:   provider.Credential{Key: "k", BaseURL: srv.URL},
		Params:       params,
	}

	got, err := a.Condense(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "condensed" {
		t.Fatalf("got %q", got)
	}
}

func TestAdapter_Condense_RateLimitClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	a := New(srv.Client())
	params := provider.DefaultGenerationParams()
	params.TimeoutOfficial, params.TimeoutThirdParty = 500*time.Millisecond, 500*time.Millisecond
	params.RetryDelay = time.Millisecond

	req := provider.Request{
		SystemPrompt: "x",
		UserText:     "y",
		Credential:   provider.Credential{Key: "k", BaseURL: srv.URL},
		Params:       params,
	}

	_, err := a.Condense(context.Background(), req)
	adapterErr, ok := err.(*provider.Error)
	if !ok {
		t.Fatalf("expected *provider.Error, got %T: %v", err, err)
	}
	if adapterErr.Kind != provider.KindRateLimit {
		t.Fatalf("expected KindRateLimit, got %v", adapterErr.Kind)
	}
}

func TestBuildURL_DefaultsAndAppendsPath(t *testing.T) {
	if got := buildURL(provider.Credential{}); got != defaultBaseURL {
		t.Fatalf("got %q, want default", got)
	}
	if got := buildURL(provider.Credential{BaseURL: "https://proxy.example.com/v1/"}); got != "https://proxy.example.com/v1/chat/completions" {
		t.Fatalf("got %q", got)
	}
	if got := buildURL(provider.Credential{BaseURL: "https://proxy.example.com/v1/chat/completions"}); got != "https://proxy.example.com/v1/chat/completions" {
		t.Fatalf("got %q", got)
	}
}
