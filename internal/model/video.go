package model

import "time"

// 视频处理状态。
const (
	VideoStatusPending   = "pending"
	VideoStatusProcessed = "processed"
)

// Video 对应于数据库中的 videos 表，记录一个已转写视频的元数据。
// TenantID 一经写入不可变更，分块行的租户归属全部由它派生。
type Video struct {
	ID         string    `gorm:"primaryKey;type:varchar(64);column:id" json:"id"`
	TenantID   string    `gorm:"type:varchar(64);not null;index;column:tenant_id" json:"tenantId"`
	Title      string    `gorm:"type:varchar(255);column:title" json:"title"`
	ChunkCount int       `gorm:"not null;default:0;column:chunk_count" json:"chunkCount"`
	Status     string    `gorm:"type:varchar(20);not null;default:'pending';column:status" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Video) TableName() string {
	return "videos"
}
