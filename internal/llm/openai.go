package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openaiBaseURL = "https://api.openai.com/v1"

// OpenAIClient is a direct HTTP client for OpenAI-compatible chat
// completion APIs. DeepSeek speaks the same wire format, so both providers
// share this implementation with different base URLs and names.
type OpenAIClient struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenAIClient creates a client for the OpenAI chat completions API.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return newChatCompletionsClient("openai", apiKey, openaiBaseURL)
}

func newChatCompletionsClient(name, apiKey, baseURL string) *OpenAIClient {
	return &OpenAIClient{
		name:    name,
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete sends a non-streaming chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	payload, err := json.Marshal(c.buildRequestBody(req, false))
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", strings.NewReader(string(payload)))
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Message: "failed to read response", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider: c.name,
			Message:  strings.TrimSpace(string(respBody)),
			Code:     resp.StatusCode,
		}
	}

	var result openaiAPIResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &ProviderError{Provider: c.name, Message: "failed to parse response", Cause: err}
	}
	if len(result.Choices) == 0 {
		return nil, &ProviderError{Provider: c.name, Message: "response contained no choices"}
	}

	return &CompletionResponse{
		Content:  result.Choices[0].Message.Content,
		Tokens:   result.Usage.TotalTokens,
		Model:    result.Model,
		Duration: time.Since(start),
	}, nil
}

// Stream sends a streaming chat completion request.
func (c *OpenAIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	eventChan := make(chan StreamEvent)

	payload, err := json.Marshal(c.buildRequestBody(req, true))
	if err != nil {
		close(eventChan)
		return eventChan, &ProviderError{Provider: c.name, Message: "failed to marshal request", Cause: err}
	}

	go c.streamRequest(ctx, eventChan, req.Model, payload)
	return eventChan, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return c.name
}

func (c *OpenAIClient) buildRequestBody(req CompletionRequest, stream bool) map[string]any {
	msgs := make([]map[string]string, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = map[string]string{"role": m.Role, "content": m.Content}
	}

	body := map[string]any{
		"model":       req.Model,
		"messages":    msgs,
		"temperature": req.Temperature,
		"stream":      stream,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if stream {
		// Ask for usage on the final chunk; backends that ignore the
		// option simply report zero tokens.
		body["stream_options"] = map[string]any{"include_usage": true}
	}
	return body
}

func (c *OpenAIClient) streamRequest(ctx context.Context, eventChan chan StreamEvent, model string, payload []byte) {
	defer close(eventChan)
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", strings.NewReader(string(payload)))
	if err != nil {
		eventChan <- StreamEvent{Type: "error", Error: fmt.Sprintf("request creation failed: %v", err)}
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
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

		dataStr := strings.TrimPrefix(line, "data: ")
		if dataStr == "[DONE]" {
			break
		}

		var chunk openaiStreamChunk
		if err := json.Unmarshal([]byte(dataStr), &chunk); err != nil {
			continue
		}

		if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
			tokens = chunk.Usage.TotalTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			fullContent.WriteString(delta)
			eventChan <- StreamEvent{Type: "delta", Content: delta}
		}
	}

	// A dropped connection must not surface as a truncated-but-complete reply
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

type openaiAPIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage openaiUsage `json:"usage"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage"`
}
