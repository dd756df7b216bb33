package model

import "time"

// Chunk 对应于数据库中的 chunks 表，是一个可检索的知识单元。
// TenantID 在持久化时一律从所属视频复制而来，绝不单独接受外部赋值。
type Chunk struct {
	ID             uint      `gorm:"primaryKey;autoIncrement;column:id"`
	VideoID        string    `gorm:"type:varchar(64);not null;index;column:video_id"`
	TenantID       string    `gorm:"type:varchar(64);not null;index;column:tenant_id"`
	ChunkIndex     int       `gorm:"not null;column:chunk_index"`
	TextContent    string    `gorm:"type:text;column:text_content"`
	StartTimestamp float64   `gorm:"not null;column:start_timestamp"`
	EndTimestamp   float64   `gorm:"not null;column:end_timestamp"`
	WordCount      int       `gorm:"column:word_count"`
	ModelVersion   string    `gorm:"type:varchar(50);column:model_version"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (Chunk) TableName() string {
	return "chunks"
}

// EsChunk 代表存储在 Elasticsearch 中的分块文档结构。
type EsChunk struct {
	VectorID       string    `json:"vector_id"` // 唯一标识，videoId + chunkIndex
	VideoID        string    `json:"video_id"`
	TenantID       string    `json:"tenant_id"`
	ChunkIndex     int       `json:"chunk_index"`
	TextContent    string    `json:"text_content"`
	Vector         []float32 `json:"vector"`
	StartTimestamp float64   `json:"start_timestamp"`
	EndTimestamp   float64   `json:"end_timestamp"`
	ModelVersion   string    `json:"model_version"`
	VideoCreatedAt int64     `json:"video_created_at"` // 视频创建时间（Unix 秒），用于同分排序
}

// RetrievedChunk 是一次检索返回的分块及其相似度，不持久化。
type RetrievedChunk struct {
	VideoID        string  `json:"videoId"`
	TenantID       string  `json:"tenantId"`
	ChunkIndex     int     `json:"chunkIndex"`
	TextContent    string  `json:"textContent"`
	StartTimestamp float64 `json:"startTimestamp"`
	EndTimestamp   float64 `json:"endTimestamp"`
	Similarity     float64 `json:"similarity"` // cosine 相似度，[-1,1]
	VideoCreatedAt int64   `json:"-"`
}
