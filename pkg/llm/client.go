// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/config"
	"courseqa-go/pkg/log"
	"courseqa-go/pkg/retry"
)

// Client defines the interface for an LLM client.
type Client interface {
	// ChatMessages 以 role-based 消息与可选生成参数调用聊天接口，返回完整回答文本。
	// 引用与置信度要基于完整回答解析，因此这里不做流式输出。
	ChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
	policy retry.Policy
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(cfg config.LLMConfig, policy retry.Policy) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		policy: policy,
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("chat api returned status %d", e.status)
}

func retryableError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	return true
}

// ChatMessages 调用聊天补全接口，瞬时故障按统一策略重试；
// 重试耗尽后返回 provider 类型错误，由上层决定降级文案，绝不编造回答。
func (c *openAICompatibleClient) ChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	var answer string
	err := c.policy.Do(ctx, "chat-completion", retryableError, func() error {
		var callErr error
		answer, callErr = c.chatOnce(ctx, messages, gen)
		return callErr
	})
	if err != nil {
		log.Errorf("[LLMClient] 生成回答失败(重试已耗尽): %v", err)
		return "", apperr.Providerf(err, "generation provider unavailable")
	}
	return answer, nil
}

func (c *openAICompatibleClient) chatOnce(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   false,
	}
	// 从配置或传参注入生成参数（传参优先生效）
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.TopP = gen.TopP
		reqBody.MaxTokens = gen.MaxTokens
	} else {
		if c.cfg.Generation.Temperature != 0 {
			t := c.cfg.Generation.Temperature
			reqBody.Temperature = &t
		}
		if c.cfg.Generation.TopP != 0 {
			p := c.cfg.Generation.TopP
			reqBody.TopP = &p
		}
		if c.cfg.Generation.MaxTokens != 0 {
			m := c.cfg.Generation.MaxTokens
			reqBody.MaxTokens = &m
		}
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 响应体只进日志，不跨边界传播
		bodyBytes, _ := io.ReadAll(resp.Body)
		log.Warnf("[LLMClient] chat api 非 200 响应: %s, body: %s", resp.Status, string(bodyBytes))
		return "", &statusError{status: resp.StatusCode}
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("chat api returned no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}
