package image

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"inkflow/internal/domain"
)

func TestNewOpenAIGeneratorRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIGenerator(OpenAIOptions{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestOpenAIGenerateSuccess(t *testing.T) {
	var captured openAIImageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization header mismatch: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{
				"url":            "https://cdn.openai.test/img-1.png",
				"revised_prompt": "a very detailed fox",
			}},
		})
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(OpenAIOptions{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}

	res, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "a fox", Size: "bogus"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if res.URL != "https://cdn.openai.test/img-1.png" {
		t.Fatalf("URL mismatch: %q", res.URL)
	}
	if res.RevisedPrompt != "a very detailed fox" {
		t.Fatalf("RevisedPrompt mismatch: %q", res.RevisedPrompt)
	}
	if captured.Model != "dall-e-3" {
		t.Fatalf("default model not applied: %q", captured.Model)
	}
	if captured.Size != "1024x1024" {
		t.Fatalf("unsupported size not normalized: %q", captured.Size)
	}
	if captured.N != 1 {
		t.Fatalf("N mismatch: %d", captured.N)
	}
}

func TestOpenAIGenerateSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limit exceeded", "type": "requests"},
		})
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(OpenAIOptions{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}

	_, err = gen.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure from 429 response, got %v", err)
	}
}

func TestOpenAIGenerateEmptyDataIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer server.Close()

	gen, err := NewOpenAIGenerator(OpenAIOptions{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}

	if _, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestNormalizeSize(t *testing.T) {
	cases := map[string]string{
		"1792x1024": "1792x1024",
		"512x512":   "512x512",
		"  ":        "1024x1024",
		"huge":      "1024x1024",
	}
	for in, want := range cases {
		if got := NormalizeSize(in); got != want {
			t.Errorf("NormalizeSize(%q) = %q, want %q", in, got, want)
		}
	}
}
