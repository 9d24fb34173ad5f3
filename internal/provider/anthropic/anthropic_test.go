package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/provider"
)

func TestComplete(t *testing.T) {
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "key-1" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") != apiVersion {
			t.Errorf("missing version header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"ok\":"},{"type":"text","text":"true}"}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	c := New(provider.Config{APIKey: "key-1", BaseURL: srv.URL})
	out, err := c.Complete(context.Background(), provider.Request{System: "sys", Prompt: "hello", MaxTokens: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("unexpected output %q", out)
	}
	if got.Model != DefaultModel || got.System != "sys" || got.MaxTokens != 100 {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestComplete_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error"}}`))
	}))
	defer srv.Close()

	c := New(provider.Config{APIKey: "bad", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), provider.Request{Prompt: "x"})
	if !errs.IsProviderKind(err, errs.AuthFailure) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	c := New(provider.Config{BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), provider.Request{Prompt: "x"})
	if !errs.IsProviderKind(err, errs.InvalidResponse) {
		t.Fatalf("expected invalid response, got %v", err)
	}
}

func TestRegistered(t *testing.T) {
	p, err := provider.New(Name, provider.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != Name {
		t.Fatalf("expected %q, got %q", Name, p.Name())
	}
}
