// Package llmclient implements agentloop.Client against the Anthropic
// Messages API directly over net/http — grounded on the teacher's native
// (SDK-free) Anthropic provider, trimmed to the single non-streaming
// Generate call the loop needs (spec §1 scopes the model-client factory,
// provider routing, and streaming out).
package llmclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aprbench/aprloop/internal/agentloop"
	"github.com/aprbench/aprloop/internal/model"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient calls the Anthropic Messages API with tool-calling
// enabled, translating between model.ConversationMessage/toolruntime.ToolDef
// and the wire shapes the API expects.
type AnthropicClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

var _ agentloop.Client = (*AnthropicClient)(nil)

func NewAnthropicClient(baseURL, apiKey string, logger *zap.Logger) *AnthropicClient {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &AnthropicClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Transport: transport, Timeout: 180 * time.Second},
		logger:  logger,
	}
}

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type wireRequest struct {
	Model     string        `json:"model"`
	Messages  []wireMessage `json:"messages"`
	System    string        `json:"system,omitempty"`
	Tools     []wireTool    `json:"tools,omitempty"`
	ToolChoice map[string]string `json:"tool_choice,omitempty"`
	MaxTokens int           `json:"max_tokens"`
}

type wireResponse struct {
	Content []wireBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate issues one non-streaming call to the Messages API.
func (c *AnthropicClient) Generate(ctx context.Context, req agentloop.LLMRequest) (agentloop.LLMResponse, error) {
	apiReq := c.buildRequest(req)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return agentloop.LLMResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return agentloop.LLMResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return agentloop.LLMResponse{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return agentloop.LLMResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return agentloop.LLMResponse{}, fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp wireResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return agentloop.LLMResponse{}, fmt.Errorf("parse response: %w", err)
	}
	return c.toLLMResponse(apiResp), nil
}

func (c *AnthropicClient) buildRequest(req agentloop.LLMRequest) wireRequest {
	apiReq := wireRequest{Model: req.Model, MaxTokens: 8192}

	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleSystem:
			apiReq.System = m.Content
		case model.RoleUser:
			apiReq.Messages = append(apiReq.Messages, wireMessage{Role: "user", Content: []wireBlock{{Type: "text", Text: m.Content}}})
		case model.RoleAssistant:
			blocks := []wireBlock{}
			if m.Content != "" {
				blocks = append(blocks, wireBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var input any
				_ = json.Unmarshal([]byte(tc.ArgumentsJSON), &input)
				blocks = append(blocks, wireBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			apiReq.Messages = append(apiReq.Messages, wireMessage{Role: "assistant", Content: blocks})
		case model.RoleTool:
			apiReq.Messages = append(apiReq.Messages, wireMessage{Role: "user", Content: []wireBlock{{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}}})
		}
	}

	for _, t := range req.Tools {
		schema := t.Schema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		apiReq.Tools = append(apiReq.Tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}

	if req.ToolChoice == agentloop.ToolChoiceNone {
		apiReq.ToolChoice = map[string]string{"type": "none"}
	} else if len(apiReq.Tools) > 0 {
		apiReq.ToolChoice = map[string]string{"type": "auto"}
	}

	return apiReq
}

func (c *AnthropicClient) toLLMResponse(apiResp wireResponse) agentloop.LLMResponse {
	var resp agentloop.LLMResponse
	var text strings.Builder
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			argsJSON, _ := json.Marshal(block.Input)
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{ID: block.ID, Name: block.Name, ArgumentsJSON: string(argsJSON)})
		}
	}
	resp.Content = text.String()
	resp.TotalTokens = apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens
	return resp
}
