package handler

import (
	"net/http"

	"courseqa-go/internal/model"
	"courseqa-go/internal/pipeline"
	"courseqa-go/internal/repository"

	"github.com/gin-gonic/gin"
)

// IngestHandler 负责处理视频摄取相关的 API 请求。
// 这组接口仅对内部服务开放，转写服务在转写完成后同步调用，
// 或经由 Kafka 异步投递（两条入口最终走同一个 Processor）。
type IngestHandler struct {
	processor *pipeline.Processor
	videoRepo repository.VideoRepository
	chunkRepo repository.ChunkRepository
}

// NewIngestHandler 创建一个新的 IngestHandler 实例。
func NewIngestHandler(processor *pipeline.Processor, videoRepo repository.VideoRepository, chunkRepo repository.ChunkRepository) *IngestHandler {
	return &IngestHandler{processor: processor, videoRepo: videoRepo, chunkRepo: chunkRepo}
}

// IngestRequest 定义了视频摄取 API 的请求体结构。
type IngestRequest struct {
	TenantID   string           `json:"tenantId" binding:"required"`
	Title      string           `json:"title"`
	Transcript model.Transcript `json:"transcript" binding:"required"`
}

// IngestResult 是一次摄取的响应数据。
type IngestResult struct {
	VideoID    string `json:"videoId"`
	ChunkCount int    `json:"chunkCount"`
}

// Ingest 处理一次完整的视频转写稿摄取。
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	videoID := c.Param("videoId")
	count, err := h.processor.IngestVideo(c.Request.Context(), videoID, req.TenantID, req.Title, req.Transcript)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, IngestResult{VideoID: videoID, ChunkCount: count})
}

// DeleteChunks 删除某个视频的全部分块（下架场景），视频元数据保留。
func (h *IngestHandler) DeleteChunks(c *gin.Context) {
	videoID := c.Param("videoId")

	video, err := h.videoRepo.FindByID(c.Request.Context(), videoID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.chunkRepo.DeleteForVideo(c.Request.Context(), video.ID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.videoRepo.SetChunkCount(c.Request.Context(), video.ID, 0, model.VideoStatusPending); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
