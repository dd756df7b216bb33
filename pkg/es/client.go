// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"courseqa-go/internal/config"
	"courseqa-go/internal/model"
	"courseqa-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Store 封装了分块向量索引上的全部操作。
// 客户端通过构造函数注入，不使用包级单例。
type Store struct {
	client *elasticsearch.Client
	index  string
	dims   int
}

// Hit 是一次 kNN 搜索的单条命中。
type Hit struct {
	Source model.EsChunk
	Score  float64 // ES 对 cosine 的打分，(1 + cos) / 2
}

// NewStore 初始化 Elasticsearch 客户端并确保分块索引存在。
func NewStore(esCfg config.ElasticsearchConfig, dims int) (*Store, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{client: client, index: esCfg.IndexName, dims: dims}
	if err := s.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return s, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (s *Store) createIndexIfNotExists() error {
	res, err := s.client.Indices.Exists([]string{s.index})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", s.index, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 向量维度与 embedding 模型对齐，相似度固定为 cosine
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"video_id": { "type": "keyword" },
				"tenant_id": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"start_timestamp": { "type": "double" },
				"end_timestamp": { "type": "double" },
				"model_version": { "type": "keyword" },
				"video_created_at": { "type": "long" }
			}
		}
	}`, s.dims)

	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", s.index, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", s.index)
	return nil
}

// BulkIndexChunks 将一个视频的全部分块文档批量写入索引。
// 任何一条写入失败都视为整体失败，调用方据此触发补偿删除。
func (s *Store) BulkIndexChunks(ctx context.Context, docs []model.EsChunk) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, doc := range docs {
		meta := map[string]map[string]string{
			"index": {"_index": s.index, "_id": doc.VectorID},
		}
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		buf.Write(metaBytes)
		buf.WriteByte('\n')
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{
		Body:    bytes.NewReader(buf.Bytes()),
		Refresh: "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("批量索引分块到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to bulk index chunks")
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		log.Errorf("批量索引存在失败条目, index: %s", s.index)
		return errors.New("bulk indexing reported item failures")
	}
	return nil
}

// DeleteChunksForVideo 删除一个视频的全部分块文档。
func (s *Store) DeleteChunksForVideo(ctx context.Context, videoID string) error {
	query := fmt.Sprintf(`{"query":{"term":{"video_id":%q}}}`, videoID)
	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{s.index},
		Body:    strings.NewReader(query),
		Refresh: &refresh,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("按视频删除分块出错, video: %s, body: %s", videoID, string(bodyBytes))
		return errors.New("failed to delete chunks for video")
	}
	return nil
}

// SearchChunks 在指定租户范围内执行 kNN 搜索。
// minSimilarity 是原始 cosine 阈值，通过 knn.similarity 下推到 ES。
func (s *Store) SearchChunks(ctx context.Context, queryVector []float32, tenantID string, topK int, minSimilarity float64) ([]Hit, error) {
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              topK,
			"num_candidates": topK * 20,
			"similarity":     minSimilarity,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"tenant_id": tenantID},
			},
		},
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsChunk `json:"_source"`
				Score  float64       `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, Hit{Source: h.Source, Score: h.Score})
	}
	return hits, nil
}

// CosineFromScore 将 ES 对 cosine 字段的打分 (1+cos)/2 还原为原始相似度。
func CosineFromScore(score float64) float64 {
	return 2*score - 1
}
