package pipeline

import (
	"context"
	"strings"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/model"
	"courseqa-go/internal/repository"
	"courseqa-go/pkg/embedding"
	"courseqa-go/pkg/log"
)

// Processor 封装了一次视频摄取的所有依赖和步骤：
// 切块 → 全量向量化 → 原子替换存储。
// 向量化在任何写入之前完成，失败的摄取不会留下任何分块。
type Processor struct {
	chunker         *Chunker
	embeddingClient embedding.Client
	videoRepo       repository.VideoRepository
	chunkRepo       repository.ChunkRepository
	modelVersion    string
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	chunker *Chunker,
	embeddingClient embedding.Client,
	videoRepo repository.VideoRepository,
	chunkRepo repository.ChunkRepository,
	modelVersion string,
) *Processor {
	return &Processor{
		chunker:         chunker,
		embeddingClient: embeddingClient,
		videoRepo:       videoRepo,
		chunkRepo:       chunkRepo,
		modelVersion:    modelVersion,
	}
}

// IngestVideo 是摄取的主函数，返回最终索引的分块数量。
func (p *Processor) IngestVideo(ctx context.Context, videoID, tenantID, title string, transcript model.Transcript) (int, error) {
	if strings.TrimSpace(videoID) == "" {
		return 0, apperr.Validationf("video id is required")
	}
	if strings.TrimSpace(tenantID) == "" {
		return 0, apperr.Validationf("tenant id is required")
	}

	log.Infof("[Processor] 开始摄取视频, VideoID: %s, TenantID: %s, 分段数: %d", videoID, tenantID, len(transcript.Segments))

	// 1. 注册视频元数据（租户不可变更）
	video := &model.Video{ID: videoID, TenantID: tenantID, Title: title, Status: model.VideoStatusPending}
	if err := p.videoRepo.Upsert(ctx, video); err != nil {
		return 0, err
	}
	saved, err := p.videoRepo.FindByID(ctx, videoID)
	if err != nil {
		return 0, err
	}

	// 2. 切块
	chunks := p.chunker.Split(transcript)
	log.Infof("[Processor] 切块完成, 共生成 %d 个分块", len(chunks))
	if len(chunks) == 0 {
		// 空转写稿：该视频没有可检索内容，按“无 RAG 可用”处理而非报错
		if err := p.chunkRepo.DeleteForVideo(ctx, videoID); err != nil {
			return 0, err
		}
		if err := p.videoRepo.SetChunkCount(ctx, videoID, 0, model.VideoStatusProcessed); err != nil {
			return 0, err
		}
		log.Warnf("[Processor] 视频 %s 的转写稿为空, 跳过向量化", videoID)
		return 0, nil
	}

	// 3. 全量向量化。此处失败直接返回，存储不会被触碰，
	//    视频绝不会以“部分向量化”的状态被标记为已处理
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].TextContent
		chunks[i].ModelVersion = p.modelVersion
	}
	vectors, err := p.embeddingClient.CreateEmbeddings(ctx, texts)
	if err != nil {
		log.Errorf("[Processor] 视频 %s 向量化失败: %v", videoID, err)
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, apperr.PartialIngestionf(nil, "embedded %d of %d chunks for video %s", len(vectors), len(chunks), videoID)
	}

	// 4. 原子替换该视频的分块
	if err := p.chunkRepo.ReplaceForVideo(ctx, saved, chunks, vectors); err != nil {
		return 0, err
	}
	if err := p.videoRepo.SetChunkCount(ctx, videoID, len(chunks), model.VideoStatusProcessed); err != nil {
		return 0, err
	}

	log.Infof("[Processor] 视频摄取成功, VideoID: %s, 分块数: %d", videoID, len(chunks))
	return len(chunks), nil
}
