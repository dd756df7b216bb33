// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"strings"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/model"

	"gorm.io/gorm"
)

// VideoRepository 定义了对 videos 表的数据操作接口。
type VideoRepository interface {
	// Upsert 注册或刷新视频元数据。视频已存在时租户不可变更，
	// 带另一个租户重新摄取会被拒绝。
	Upsert(ctx context.Context, video *model.Video) error
	FindByID(ctx context.Context, videoID string) (*model.Video, error)
	SetChunkCount(ctx context.Context, videoID string, count int, status string) error
}

type videoRepository struct {
	db *gorm.DB
}

// NewVideoRepository 创建一个新的 VideoRepository 实例。
func NewVideoRepository(db *gorm.DB) VideoRepository {
	return &videoRepository{db: db}
}

func (r *videoRepository) Upsert(ctx context.Context, video *model.Video) error {
	if strings.TrimSpace(video.ID) == "" {
		return apperr.Validationf("video id is required")
	}
	if strings.TrimSpace(video.TenantID) == "" {
		return apperr.Validationf("tenant id is required")
	}

	var existing model.Video
	err := r.db.WithContext(ctx).First(&existing, "id = ?", video.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(video).Error
	}
	if err != nil {
		return err
	}
	if existing.TenantID != video.TenantID {
		return apperr.Authorizationf("video %s belongs to another tenant", video.ID)
	}
	return r.db.WithContext(ctx).Model(&model.Video{}).
		Where("id = ?", video.ID).
		Updates(map[string]interface{}{"title": video.Title, "status": video.Status}).Error
}

func (r *videoRepository) FindByID(ctx context.Context, videoID string) (*model.Video, error) {
	var video model.Video
	err := r.db.WithContext(ctx).First(&video, "id = ?", videoID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("video %s not found", videoID)
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

func (r *videoRepository) SetChunkCount(ctx context.Context, videoID string, count int, status string) error {
	return r.db.WithContext(ctx).Model(&model.Video{}).
		Where("id = ?", videoID).
		Updates(map[string]interface{}{"chunk_count": count, "status": status}).Error
}
