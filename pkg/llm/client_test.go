package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/config"
	"courseqa-go/pkg/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func reply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
}

func TestChatMessagesReturnsContent(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		reply(w, "指针保存变量的地址。\nSOURCES: 1")
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL, Model: "qwen-plus"}, testPolicy())
	answer, err := client.ChatMessages(context.Background(), []Message{
		{Role: "system", Content: "规则"},
		{Role: "user", Content: "什么是指针?"},
	}, nil)
	if err != nil {
		t.Fatalf("ChatMessages failed: %v", err)
	}
	if answer != "指针保存变量的地址。\nSOURCES: 1" {
		t.Fatalf("unexpected answer: %q", answer)
	}
	if got.Stream {
		t.Fatal("chat requests must not ask for streaming")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("messages not forwarded: %+v", got.Messages)
	}
}

func TestChatMessagesRetriesServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		reply(w, "好了")
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL, Model: "qwen-plus"}, testPolicy())
	answer, err := client.ChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("ChatMessages failed after retries: %v", err)
	}
	if calls != 3 || answer != "好了" {
		t.Fatalf("expected success on third attempt, calls=%d answer=%q", calls, answer)
	}
}

func TestChatMessagesFailsFastOnClientError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL, Model: "qwen-plus"}, testPolicy())
	_, err := client.ChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	if !apperr.IsKind(err, apperr.KindProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls)
	}
}

func TestChatMessagesAppliesConfiguredGeneration(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		reply(w, "ok")
	}))
	defer server.Close()

	cfg := config.LLMConfig{
		BaseURL: server.URL,
		Model:   "qwen-plus",
		Generation: config.LLMGenerationConfig{
			Temperature: 0.3,
			MaxTokens:   1024,
		},
	}
	client := NewClient(cfg, testPolicy())
	if _, err := client.ChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil); err != nil {
		t.Fatalf("ChatMessages failed: %v", err)
	}
	if got.Temperature == nil || *got.Temperature != 0.3 {
		t.Fatalf("configured temperature not applied: %+v", got.Temperature)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 1024 {
		t.Fatalf("configured max_tokens not applied: %+v", got.MaxTokens)
	}
}
