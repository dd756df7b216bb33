// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"strings"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/model"
	"courseqa-go/internal/repository"
	"courseqa-go/pkg/embedding"
	"courseqa-go/pkg/log"
)

// RetrievalService 定义了问题检索的接口。
type RetrievalService interface {
	// Retrieve 将问题向量化后在租户范围内检索最相关的分块。
	// 没有任何分块越过相似度阈值时返回 no_context 类型错误，
	// 让上层给出“没有相关信息”的回答而不是基于无关分块瞎编。
	Retrieve(ctx context.Context, question, tenantID string) ([]model.RetrievedChunk, error)
}

type retrievalService struct {
	embeddingClient embedding.Client
	chunkRepo       repository.ChunkRepository
	topK            int
	minSimilarity   float64
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
// minSimilarity 原样采用：0 表示不做阈值过滤，默认值由配置层提供。
func NewRetrievalService(embeddingClient embedding.Client, chunkRepo repository.ChunkRepository, topK int, minSimilarity float64) RetrievalService {
	if topK <= 0 {
		topK = 5
	}
	return &retrievalService{
		embeddingClient: embeddingClient,
		chunkRepo:       chunkRepo,
		topK:            topK,
		minSimilarity:   minSimilarity,
	}
}

func (s *retrievalService) Retrieve(ctx context.Context, question, tenantID string) ([]model.RetrievedChunk, error) {
	// 校验在任何网络调用之前完成
	if strings.TrimSpace(question) == "" {
		return nil, apperr.Validationf("question is required")
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, apperr.Validationf("tenant id is required")
	}

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, question)
	if err != nil {
		return nil, err
	}

	results, err := s.chunkRepo.Search(ctx, queryVector, tenantID, s.topK, s.minSimilarity)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		log.Infof("[RetrievalService] 租户 %s 的检索无结果越过阈值 %.2f", tenantID, s.minSimilarity)
		return nil, apperr.NoContext()
	}

	log.Infof("[RetrievalService] 检索命中 %d 个分块, 最高相似度 %.3f", len(results), results[0].Similarity)
	return results, nil
}
