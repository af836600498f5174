package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"inkflow/internal/domain"
)

// OpenAIOptions configures the DALL-E image generator.
type OpenAIOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAIGenerator generates images via the OpenAI images endpoint.
type OpenAIGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// The provider call has no cancellation hook once in flight; the client
// timeout bounds how long one generation can stall the polling loop.
const openAIDefaultTimeout = 120 * time.Second

const defaultOpenAIModel = "dall-e-3"

type openAIImageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality,omitempty"`
}

type openAIImageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIGenerator validates the options and returns a ready client.
func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIGenerator{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

// Model returns the model the generator is configured for.
func (o *OpenAIGenerator) Model() string {
	return o.model
}

// Generate renders one image and returns the provider's transient URL.
func (o *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	payload := openAIImageRequest{
		Model:   model,
		Prompt:  req.Prompt,
		N:       1,
		Size:    NormalizeSize(req.Size),
		Quality: req.Quality,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/images/generations", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	var out openAIImageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("openai: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 {
		if out.Error != nil && out.Error.Message != "" {
			return nil, fmt.Errorf("%w: openai: %s (status %d)", domain.ErrProviderFailure, out.Error.Message, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: openai: status %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return nil, fmt.Errorf("%w: openai: response contained no image", domain.ErrProviderFailure)
	}
	return &Result{
		URL:           out.Data[0].URL,
		RevisedPrompt: out.Data[0].RevisedPrompt,
	}, nil
}

var _ Generator = (*OpenAIGenerator)(nil)
