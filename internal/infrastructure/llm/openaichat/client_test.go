package openaichat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

func chatServer(t *testing.T, reply string, capture *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
}

func TestCompleteSendsJSONModeRequest(t *testing.T) {
	var captured chatRequest
	server := chatServer(t, ` {"suitable_for_kb": true} `, &captured)
	defer server.Close()

	client := New(server.URL, "api-key", "qwen-plus", Options{RequestsPerSecond: 1000})
	reply, err := client.Complete(context.Background(), "system prompt", "user prompt", true)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if reply != `{"suitable_for_kb": true}` {
		t.Errorf("reply = %q, want trimmed content", reply)
	}
	if captured.Model != "qwen-plus" {
		t.Errorf("model = %q", captured.Model)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", captured.Messages)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Errorf("response format = %+v, want json_object", captured.ResponseFormat)
	}
}

func TestCompleteOmitsResponseFormatWithoutJSONMode(t *testing.T) {
	var captured chatRequest
	server := chatServer(t, "plain reply", &captured)
	defer server.Close()

	client := New(server.URL, "", "qwen-plus", Options{RequestsPerSecond: 1000})
	if _, err := client.Complete(context.Background(), "s", "u", false); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if captured.ResponseFormat != nil {
		t.Errorf("response format = %+v, want omitted", captured.ResponseFormat)
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client := New(server.URL, "", "m", Options{RequestsPerSecond: 1000})
	if _, err := client.Complete(context.Background(), "s", "u", true); err == nil {
		t.Fatal("expected error for reply without choices")
	}
}

func TestCompleteMarksRetryableStatusesTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "", "m", Options{RequestsPerSecond: 1000})
	_, err := client.Complete(context.Background(), "s", "u", true)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("err = %v, want ErrTemporary for a 503", err)
	}
}

func TestModelReportsConfiguredName(t *testing.T) {
	client := New("http://localhost", "", "qwen-plus", Options{})
	if client.Model() != "qwen-plus" {
		t.Errorf("Model() = %q", client.Model())
	}
}
