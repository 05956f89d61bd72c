package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mindloop-app/mindloop/pkg/memory"
)

func reqWithUser(content string) Request {
	return Request{
		SystemPrompt: "system",
		Messages:     []memory.Message{memory.NewMessage("m1", memory.RoleUser, content)},
	}
}

func TestPatternGenerator_Deterministic(t *testing.T) {
	g := NewPatternGenerator()
	ctx := context.Background()

	first, err := g.Generate(ctx, reqWithUser("退屈で開いてしまった"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := g.Generate(ctx, reqWithUser("退屈で開いてしまった"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first != second {
		t.Fatalf("same input must yield same reply: %q vs %q", first, second)
	}
	if !strings.Contains(first, "退屈") {
		t.Fatalf("expected boredom rule to fire, got %q", first)
	}
}

func TestPatternGenerator_FallsBackToDefault(t *testing.T) {
	g := NewPatternGenerator()
	reply, err := g.Generate(context.Background(), reqWithUser("よくわからない話"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply == "" {
		t.Fatalf("default rule must always produce a reply")
	}
}

func TestHTTPGenerator_SendsChatRequest(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"わかりました。"}}]}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(HTTPConfig{APIBase: srv.URL, Model: "local-7b"})
	req := Request{
		SystemPrompt: "あなたはコーチです",
		UserContext:  "既知のきっかけ: 退屈",
		Messages: []memory.Message{
			memory.NewMessage("m1", memory.RoleAssistant, "どうしましたか?"),
			memory.NewMessage("m2", memory.RoleUser, "また開いてしまった"),
		},
	}
	reply, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "わかりました。" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if captured.Model != "local-7b" {
		t.Fatalf("model not forwarded: %q", captured.Model)
	}
	if len(captured.Messages) != 3 || captured.Messages[0].Role != "system" {
		t.Fatalf("expected system + 2 history messages, got %+v", captured.Messages)
	}
	if !strings.Contains(captured.Messages[0].Content, "既知のきっかけ") {
		t.Fatalf("user context must ride in the system message: %q", captured.Messages[0].Content)
	}
	if captured.Messages[1].Role != "assistant" || captured.Messages[2].Role != "user" {
		t.Fatalf("history roles mangled: %+v", captured.Messages)
	}
}

func TestHTTPGenerator_ErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewHTTPGenerator(HTTPConfig{APIBase: srv.URL, Model: "local-7b"})
	if _, err := g.Generate(context.Background(), reqWithUser("こんにちは")); err == nil {
		t.Fatalf("expected error on non-200 status")
	}
}
