package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompleteSendsChatRequest(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"alerts\": []}"}}]}`))
	}))
	defer server.Close()

	client, err := NewClient("secret", WithBaseURL(server.URL+"/"), WithModel("test-model"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	reply, err := client.Complete(context.Background(), "analyze")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply != `{"alerts": []}` {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got.Model != "test-model" || len(got.Messages) != 1 || got.Messages[0].Content != "analyze" || got.Messages[0].Role != "user" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestCompleteReportsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer server.Close()

	client, _ := NewClient("secret", WithBaseURL(server.URL))
	_, err := client.Complete(context.Background(), "analyze")
	if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client, _ := NewClient("secret", WithBaseURL(server.URL))
	if _, err := client.Complete(context.Background(), "analyze"); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected empty completion, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(" "); err == nil {
		t.Fatalf("expected error for blank key")
	}
}
