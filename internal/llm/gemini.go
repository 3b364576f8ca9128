package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiAPIClient is a direct HTTP client for the Google Gemini API.
type GeminiAPIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGeminiAPIClient creates a new Gemini API client.
func NewGeminiAPIClient(apiKey string) *GeminiAPIClient {
	return newGeminiClientWithBaseURL(apiKey, geminiBaseURL)
}

func newGeminiClientWithBaseURL(apiKey, baseURL string) *GeminiAPIClient {
	return &GeminiAPIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete sends a non-streaming generateContent request.
func (g *GeminiAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	payload, err := json.Marshal(g.buildRequestBody(req))
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Message: "failed to marshal request", Cause: err}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.baseURL, req.Model, url.QueryEscape(g.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Message: "failed to read response", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider: "gemini",
			Message:  strings.TrimSpace(string(respBody)),
			Code:     resp.StatusCode,
		}
	}

	var result geminiAPIResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &ProviderError{Provider: "gemini", Message: "failed to parse response", Cause: err}
	}
	if len(result.Candidates) == 0 {
		return nil, &ProviderError{Provider: "gemini", Message: "response contained no candidates"}
	}

	return &CompletionResponse{
		Content: result.Candidates[0].Content.Text(),
		// Zero when the backend omits usage metadata; never estimated.
		Tokens:   result.UsageMetadata.TotalTokenCount,
		Model:    req.Model,
		Duration: time.Since(start),
	}, nil
}

// Stream sends a streaming generateContent request over SSE.
func (g *GeminiAPIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	eventChan := make(chan StreamEvent)

	payload, err := json.Marshal(g.buildRequestBody(req))
	if err != nil {
		close(eventChan)
		return eventChan, &ProviderError{Provider: "gemini", Message: "failed to marshal request", Cause: err}
	}

	go g.streamRequest(ctx, eventChan, req.Model, payload)
	return eventChan, nil
}

// Name returns the provider name.
func (g *GeminiAPIClient) Name() string {
	return "gemini"
}

// buildRequestBody converts the request into Gemini's contents format.
// System messages become the systemInstruction; assistant turns map to the
// "model" role.
func (g *GeminiAPIClient) buildRequestBody(req CompletionRequest) map[string]any {
	var system strings.Builder
	var contents []map[string]any

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
		default:
			role := "user"
			if m.Role == RoleAssistant {
				role = "model"
			}
			contents = append(contents, map[string]any{
				"role":  role,
				"parts": []map[string]string{{"text": m.Content}},
			})
		}
	}

	body := map[string]any{
		"contents": contents,
		"generationConfig": map[string]any{
			"temperature":     req.Temperature,
			"maxOutputTokens": req.MaxTokens,
		},
	}
	if system.Len() > 0 {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": system.String()}},
		}
	}
	return body
}

func (g *GeminiAPIClient) streamRequest(ctx context.Context, eventChan chan StreamEvent, model string, payload []byte) {
	defer close(eventChan)
	start := time.Now()

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		g.baseURL, model, url.QueryEscape(g.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		eventChan <- StreamEvent{Type: "error", Error: fmt.Sprintf("request creation failed: %v", err)}
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		eventChan <- StreamEvent{Type: "error", Error: fmt.Sprintf("request failed: %v", err)}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		eventChan <- StreamEvent{Type: "error", Error: fmt.Sprintf("API error (%d): %s", resp.StatusCode, string(body))}
		return
	}

	scanner := newServerSentEventScanner(resp.Body)
	var fullContent strings.Builder
	var tokens int

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var chunk geminiAPIResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			continue
		}

		if chunk.UsageMetadata.TotalTokenCount > 0 {
			tokens = chunk.UsageMetadata.TotalTokenCount
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		if delta := chunk.Candidates[0].Content.Text(); delta != "" {
			fullContent.WriteString(delta)
			eventChan <- StreamEvent{Type: "delta", Content: delta}
		}
	}

	if err := scanner.Err(); err != nil {
		eventChan <- StreamEvent{Type: "error", Error: fmt.Sprintf("stream read failed: %v", err)}
		return
	}

	eventChan <- StreamEvent{
		Type: "done",
		Response: &CompletionResponse{
			Content:  fullContent.String(),
			Tokens:   tokens,
			Model:    model,
			Duration: time.Since(start),
		},
	}
}

// API response structures

type geminiAPIResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type geminiContent struct {
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

// Text concatenates all text parts of a content block.
func (c geminiContent) Text() string {
	var b strings.Builder
	for _, p := range c.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
