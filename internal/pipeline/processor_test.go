package pipeline

import (
	"context"
	"errors"
	"testing"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/model"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{float32(i), 1}
	}
	return vectors, nil
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type fakeVideoRepo struct {
	video      *model.Video
	chunkCount int
	status     string
}

func (f *fakeVideoRepo) Upsert(ctx context.Context, video *model.Video) error {
	f.video = video
	return nil
}

func (f *fakeVideoRepo) FindByID(ctx context.Context, videoID string) (*model.Video, error) {
	if f.video == nil || f.video.ID != videoID {
		return nil, apperr.NotFoundf("video %s not found", videoID)
	}
	return f.video, nil
}

func (f *fakeVideoRepo) SetChunkCount(ctx context.Context, videoID string, count int, status string) error {
	f.chunkCount = count
	f.status = status
	return nil
}

type fakeChunkRepo struct {
	replaced []model.Chunk
	deletes  int
}

func (f *fakeChunkRepo) ReplaceForVideo(ctx context.Context, video *model.Video, chunks []model.Chunk, vectors [][]float32) error {
	f.replaced = chunks
	return nil
}

func (f *fakeChunkRepo) Search(ctx context.Context, queryVector []float32, tenantID string, topK int, minSimilarity float64) ([]model.RetrievedChunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) DeleteForVideo(ctx context.Context, videoID string) error {
	f.deletes++
	return nil
}

func sampleTranscript() model.Transcript {
	return model.Transcript{Segments: []model.TranscriptSegment{
		{Index: 0, StartTimestamp: 0, EndTimestamp: 20, Text: "the quick brown fox"},
		{Index: 1, StartTimestamp: 20, EndTimestamp: 40, Text: "jumps over the lazy dog"},
	}}
}

func newTestProcessor(embedder *fakeEmbedder, videoRepo *fakeVideoRepo, chunkRepo *fakeChunkRepo) *Processor {
	return NewProcessor(NewChunker(200, 120), embedder, videoRepo, chunkRepo, "text-embedding-v3")
}

func TestIngestVideoHappyPath(t *testing.T) {
	embedder := &fakeEmbedder{}
	videoRepo := &fakeVideoRepo{}
	chunkRepo := &fakeChunkRepo{}
	p := newTestProcessor(embedder, videoRepo, chunkRepo)

	count, err := p.IngestVideo(context.Background(), "v1", "t1", "Go 入门", sampleTranscript())
	if err != nil {
		t.Fatalf("IngestVideo failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 chunk, got %d", count)
	}
	if len(chunkRepo.replaced) != 1 {
		t.Fatalf("expected 1 chunk replaced, got %d", len(chunkRepo.replaced))
	}
	if chunkRepo.replaced[0].ModelVersion != "text-embedding-v3" {
		t.Fatalf("model version not stamped: %q", chunkRepo.replaced[0].ModelVersion)
	}
	if videoRepo.chunkCount != 1 || videoRepo.status != model.VideoStatusProcessed {
		t.Fatalf("video metadata not finalized: count=%d status=%q", videoRepo.chunkCount, videoRepo.status)
	}
}

func TestIngestVideoEmbeddingFailureWritesNothing(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("provider unavailable")}
	videoRepo := &fakeVideoRepo{}
	chunkRepo := &fakeChunkRepo{}
	p := newTestProcessor(embedder, videoRepo, chunkRepo)

	_, err := p.IngestVideo(context.Background(), "v1", "t1", "Go 入门", sampleTranscript())
	if err == nil {
		t.Fatal("expected error when embedding fails")
	}
	if chunkRepo.replaced != nil || chunkRepo.deletes != 0 {
		t.Fatal("store must not be touched when embedding fails")
	}
	if videoRepo.status == model.VideoStatusProcessed {
		t.Fatal("video must not be marked processed when embedding fails")
	}
}

func TestIngestVideoEmptyTranscript(t *testing.T) {
	embedder := &fakeEmbedder{}
	videoRepo := &fakeVideoRepo{}
	chunkRepo := &fakeChunkRepo{}
	p := newTestProcessor(embedder, videoRepo, chunkRepo)

	count, err := p.IngestVideo(context.Background(), "v1", "t1", "空视频", model.Transcript{})
	if err != nil {
		t.Fatalf("empty transcript must not be an error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 chunks, got %d", count)
	}
	if embedder.calls != 0 {
		t.Fatal("embedder must not be called for an empty transcript")
	}
	if chunkRepo.deletes != 1 {
		t.Fatal("stale chunks must be removed for an empty transcript")
	}
	if videoRepo.chunkCount != 0 || videoRepo.status != model.VideoStatusProcessed {
		t.Fatalf("video must be marked processed with 0 chunks, got count=%d status=%q", videoRepo.chunkCount, videoRepo.status)
	}
}

func TestIngestVideoValidatesIdentifiers(t *testing.T) {
	p := newTestProcessor(&fakeEmbedder{}, &fakeVideoRepo{}, &fakeChunkRepo{})

	if _, err := p.IngestVideo(context.Background(), "", "t1", "x", sampleTranscript()); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty video id, got %v", err)
	}
	if _, err := p.IngestVideo(context.Background(), "v1", "", "x", sampleTranscript()); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty tenant id, got %v", err)
	}
}
