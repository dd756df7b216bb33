package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/model"
	"courseqa-go/pkg/es"
	"courseqa-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ChunkRepository 定义了分块存储的操作接口。
// 写入以视频为原子单位：要么该视频的全部分块落库并建索引，要么一个都不留。
type ChunkRepository interface {
	// ReplaceForVideo 先删后写地替换一个视频的全部分块。
	// 分块的租户一律取自 video 行，调用方无法逐条指定。
	ReplaceForVideo(ctx context.Context, video *model.Video, chunks []model.Chunk, vectors [][]float32) error
	// Search 在租户范围内做相似度检索。tenantID 缺失是硬错误，不是空结果。
	Search(ctx context.Context, queryVector []float32, tenantID string, topK int, minSimilarity float64) ([]model.RetrievedChunk, error)
	DeleteForVideo(ctx context.Context, videoID string) error
}

// VectorIndex 抽象了分块向量索引的操作，生产实现是 *es.Store。
type VectorIndex interface {
	BulkIndexChunks(ctx context.Context, docs []model.EsChunk) error
	DeleteChunksForVideo(ctx context.Context, videoID string) error
	SearchChunks(ctx context.Context, queryVector []float32, tenantID string, topK int, minSimilarity float64) ([]es.Hit, error)
}

type chunkRepository struct {
	db    *gorm.DB
	rdb   *redis.Client
	store VectorIndex
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB, rdb *redis.Client, store VectorIndex) ChunkRepository {
	return &chunkRepository{db: db, rdb: rdb, store: store}
}

// 每视频摄取锁的参数：持锁只覆盖本地删写，不跨越任何外部网络调用。
const (
	ingestLockTTL  = 2 * time.Minute
	ingestLockWait = 30 * time.Second
	ingestLockPoll = 200 * time.Millisecond
)

func (r *chunkRepository) ReplaceForVideo(ctx context.Context, video *model.Video, chunks []model.Chunk, vectors [][]float32) error {
	if video == nil || strings.TrimSpace(video.ID) == "" || strings.TrimSpace(video.TenantID) == "" {
		return apperr.Validationf("video with id and tenant is required")
	}
	if len(chunks) != len(vectors) {
		return apperr.PartialIngestionf(nil, "got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	// 同一视频的并发重摄取必须串行化，通过 Redis 抢占式锁实现
	unlock, err := r.acquireIngestLock(ctx, video.ID)
	if err != nil {
		return err
	}
	defer unlock()

	// 1. 清理旧数据（重摄取是整体替换，绝不原地修补）
	if err := r.deleteForVideoLocked(ctx, video.ID); err != nil {
		return fmt.Errorf("清理视频 %s 旧分块失败: %w", video.ID, err)
	}
	if len(chunks) == 0 {
		return nil
	}

	// 2. 落库：单事务批量写入，租户从视频行复制
	rows := make([]*model.Chunk, 0, len(chunks))
	for i := range chunks {
		row := chunks[i]
		row.VideoID = video.ID
		row.TenantID = video.TenantID
		rows = append(rows, &row)
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return fmt.Errorf("批量保存分块失败: %w", err)
	}

	// 3. 建向量索引；失败则补偿删除，保证不存在半索引的视频
	docs := make([]model.EsChunk, 0, len(chunks))
	videoCreatedAt := video.CreatedAt.Unix()
	for i := range chunks {
		docs = append(docs, model.EsChunk{
			VectorID:       fmt.Sprintf("%s_%d", video.ID, chunks[i].ChunkIndex),
			VideoID:        video.ID,
			TenantID:       video.TenantID,
			ChunkIndex:     chunks[i].ChunkIndex,
			TextContent:    chunks[i].TextContent,
			Vector:         vectors[i],
			StartTimestamp: chunks[i].StartTimestamp,
			EndTimestamp:   chunks[i].EndTimestamp,
			ModelVersion:   chunks[i].ModelVersion,
			VideoCreatedAt: videoCreatedAt,
		})
	}
	if err := r.store.BulkIndexChunks(ctx, docs); err != nil {
		log.Errorf("[ChunkRepository] 索引失败，回滚视频 %s 的分块: %v", video.ID, err)
		if rbErr := r.deleteForVideoLocked(ctx, video.ID); rbErr != nil {
			log.Errorf("[ChunkRepository] 回滚视频 %s 分块失败: %v", video.ID, rbErr)
		}
		return apperr.PartialIngestionf(err, "indexing failed for video %s, all chunks rolled back", video.ID)
	}
	return nil
}

func (r *chunkRepository) Search(ctx context.Context, queryVector []float32, tenantID string, topK int, minSimilarity float64) ([]model.RetrievedChunk, error) {
	// 租户范围是整个系统最重要的正确性条件：缺失时必须大声失败，
	// 绝不能退化成“查询全部”。
	if strings.TrimSpace(tenantID) == "" {
		return nil, apperr.Validationf("tenant id is required for chunk search")
	}
	if len(queryVector) == 0 {
		return nil, apperr.Validationf("query vector is required")
	}
	if topK <= 0 {
		return nil, apperr.Validationf("topK must be positive, got %d", topK)
	}

	hits, err := r.store.SearchChunks(ctx, queryVector, tenantID, topK, minSimilarity)
	if err != nil {
		return nil, apperr.Providerf(err, "chunk search failed")
	}

	results := make([]model.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		// 租户过滤以 ES filter 为准，这里再校验一次，不满足的命中直接丢弃
		if hit.Source.TenantID != tenantID {
			log.Warnf("[ChunkRepository] 丢弃越租户命中: vector_id=%s", hit.Source.VectorID)
			continue
		}
		similarity := es.CosineFromScore(hit.Score)
		if similarity < minSimilarity {
			continue
		}
		results = append(results, model.RetrievedChunk{
			VideoID:        hit.Source.VideoID,
			TenantID:       hit.Source.TenantID,
			ChunkIndex:     hit.Source.ChunkIndex,
			TextContent:    hit.Source.TextContent,
			StartTimestamp: hit.Source.StartTimestamp,
			EndTimestamp:   hit.Source.EndTimestamp,
			Similarity:     similarity,
			VideoCreatedAt: hit.Source.VideoCreatedAt,
		})
	}

	SortRetrieved(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (r *chunkRepository) DeleteForVideo(ctx context.Context, videoID string) error {
	unlock, err := r.acquireIngestLock(ctx, videoID)
	if err != nil {
		return err
	}
	defer unlock()
	return r.deleteForVideoLocked(ctx, videoID)
}

// deleteForVideoLocked 在持有摄取锁的前提下删除 DB 行与 ES 文档。
func (r *chunkRepository) deleteForVideoLocked(ctx context.Context, videoID string) error {
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&model.Chunk{}).Error; err != nil {
		return err
	}
	return r.store.DeleteChunksForVideo(ctx, videoID)
}

// acquireIngestLock 以轮询方式获取每视频的 Redis 抢占锁。
func (r *chunkRepository) acquireIngestLock(ctx context.Context, videoID string) (func(), error) {
	key := fmt.Sprintf("ingest:lock:video:%s", videoID)
	deadline := time.Now().Add(ingestLockWait)
	for {
		ok, err := r.rdb.SetNX(ctx, key, 1, ingestLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("获取摄取锁失败: %w", err)
		}
		if ok {
			return func() {
				if err := r.rdb.Del(context.Background(), key).Err(); err != nil {
					log.Warnf("[ChunkRepository] 释放摄取锁失败: %v", err)
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, apperr.Providerf(nil, "another ingestion for video %s is in progress", videoID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ingestLockPoll):
		}
	}
}

// SortRetrieved 对检索结果做确定性排序：相似度降序；
// 同分时按视频创建时间升序，再按视频内分块序号升序。
func SortRetrieved(results []model.RetrievedChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if results[i].VideoCreatedAt != results[j].VideoCreatedAt {
			return results[i].VideoCreatedAt < results[j].VideoCreatedAt
		}
		if results[i].VideoID != results[j].VideoID {
			return results[i].VideoID < results[j].VideoID
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
}
