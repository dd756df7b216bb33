// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/config"
	"courseqa-go/pkg/log"
	"courseqa-go/pkg/retry"
)

// Client defines the interface for an embedding client.
// CreateEmbeddings 返回与输入一一对应的定长向量；任何一个批次失败都会使整个调用失败，
// 绝不会悄悄丢掉部分分块。
type Client interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
	policy retry.Policy
}

// NewClient creates a new embedding client based on the provider in the config.
func NewClient(cfg config.EmbeddingConfig, policy retry.Policy) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
		policy: policy,
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// statusError 保留 HTTP 状态码，供重试判定区分瞬时与永久故障。
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("embedding api returned status %d", e.status)
}

// retryableError 判定是否值得重试：限流、5xx 与网络错误算瞬时故障。
func retryableError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	return true
}

// CreateEmbeddings 将输入按配置的批大小切分后逐批调用 API，并拼接结果。
func (c *openAICompatibleClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 96
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		log.Infof("[EmbeddingClient] 调用 Embedding API, model: %s, batch: %d-%d/%d", c.cfg.Model, start, end, len(texts))

		var batchVectors [][]float32
		err := c.policy.Do(ctx, "embedding", retryableError, func() error {
			var callErr error
			batchVectors, callErr = c.embedBatch(ctx, batch)
			return callErr
		})
		if err != nil {
			log.Errorf("[EmbeddingClient] 批次向量化失败(重试已耗尽), batch: %d-%d, error: %v", start, end, err)
			return nil, apperr.Providerf(err, "embedding provider failed after retries")
		}
		vectors = append(vectors, batchVectors...)
	}
	return vectors, nil
}

// CreateEmbedding 是查询链路使用的单文本便捷入口。
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, apperr.Providerf(nil, "expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// embedBatch 执行一次 OpenAI 兼容接口调用。
func (c *openAICompatibleClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode}
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(embeddingResp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding api returned %d vectors for %d inputs", len(embeddingResp.Data), len(texts))
	}

	// 按 index 回填，保证与输入顺序一致
	vectors := make([][]float32, len(texts))
	for _, item := range embeddingResp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embedding api returned out-of-range index %d", item.Index)
		}
		if c.cfg.Dimensions > 0 && len(item.Embedding) != c.cfg.Dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(item.Embedding), c.cfg.Dimensions)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("embedding api returned empty vector for input %d", i)
		}
	}
	return vectors, nil
}
