package service

import (
	"context"
	"math"
	"strings"
	"testing"

	"courseqa-go/internal/config"
	"courseqa-go/internal/model"
	"courseqa-go/pkg/llm"
)

type stubLLM struct {
	reply    string
	err      error
	messages []llm.Message
}

func (s *stubLLM) ChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	s.messages = messages
	return s.reply, s.err
}

func retrievedFixture() []model.RetrievedChunk {
	return []model.RetrievedChunk{
		{VideoID: "v1", TenantID: "t1", ChunkIndex: 0, TextContent: "指针保存变量的地址", StartTimestamp: 10, Similarity: 0.9},
		{VideoID: "v1", TenantID: "t1", ChunkIndex: 1, TextContent: "解引用取出指针指向的值", StartTimestamp: 70, Similarity: 0.8},
		{VideoID: "v2", TenantID: "t1", ChunkIndex: 0, TextContent: "切片底层也是指针", StartTimestamp: 5, Similarity: 0.7},
	}
}

func TestGenerateExtractsCitations(t *testing.T) {
	stub := &stubLLM{reply: "指针保存的是变量的内存地址。\nSOURCES: 1,3"}
	svc := NewAnswerService(stub, config.LLMPromptConfig{}, 10)

	answer, err := svc.Generate(context.Background(), "什么是指针?", retrievedFixture(), nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if strings.Contains(answer.Text, "SOURCES") {
		t.Fatalf("sources line must be stripped from answer text: %q", answer.Text)
	}
	if len(answer.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(answer.Citations))
	}
	if answer.Citations[0].VideoID != "v1" || answer.Citations[0].Timestamp != 10 {
		t.Fatalf("unexpected first citation: %+v", answer.Citations[0])
	}
	if answer.Citations[1].VideoID != "v2" || answer.Citations[1].Timestamp != 5 {
		t.Fatalf("unexpected second citation: %+v", answer.Citations[1])
	}
	// 置信度 = 被引分块的平均相似度 (0.9 + 0.7) / 2
	if math.Abs(answer.Confidence-0.8) > 1e-9 {
		t.Fatalf("expected confidence 0.8, got %f", answer.Confidence)
	}
}

func TestGenerateDropsOutOfRangeAndDuplicateCitations(t *testing.T) {
	stub := &stubLLM{reply: "回答正文。\nSOURCES: 2, 2, 7, 0, abc"}
	svc := NewAnswerService(stub, config.LLMPromptConfig{}, 10)

	answer, err := svc.Generate(context.Background(), "什么是指针?", retrievedFixture(), nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(answer.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d: %+v", len(answer.Citations), answer.Citations)
	}
	if answer.Citations[0].Timestamp != 70 {
		t.Fatalf("expected citation of chunk 2, got %+v", answer.Citations[0])
	}
}

func TestGenerateUngroundedAnswerHalvesConfidence(t *testing.T) {
	stub := &stubLLM{reply: "资料中没有相关内容。\nSOURCES: none"}
	svc := NewAnswerService(stub, config.LLMPromptConfig{}, 10)

	answer, err := svc.Generate(context.Background(), "什么是指针?", retrievedFixture(), nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(answer.Citations) != 0 {
		t.Fatalf("expected no citations, got %+v", answer.Citations)
	}
	// 0.5 * (0.9 + 0.8 + 0.7) / 3
	if math.Abs(answer.Confidence-0.4) > 1e-9 {
		t.Fatalf("expected confidence 0.4, got %f", answer.Confidence)
	}
}

func TestConfidenceIsMonotonicInSimilarity(t *testing.T) {
	low := []model.RetrievedChunk{{Similarity: 0.71}, {Similarity: 0.72}}
	high := []model.RetrievedChunk{{Similarity: 0.91}, {Similarity: 0.92}}

	if computeConfidence(low, low) >= computeConfidence(high, high) {
		t.Fatal("confidence must grow with cited similarity")
	}
	if computeConfidence(low, nil) >= computeConfidence(high, nil) {
		t.Fatal("ungrounded confidence must grow with retrieved similarity")
	}
	if computeConfidence(high, nil) >= computeConfidence(high, high) {
		t.Fatal("grounded answers must score higher than ungrounded ones at equal similarity")
	}
}

func TestGeneratePromptContainsContextAndHistory(t *testing.T) {
	stub := &stubLLM{reply: "回答。\nSOURCES: 1"}
	svc := NewAnswerService(stub, config.LLMPromptConfig{}, 2)

	history := []model.ChatMessage{
		{Role: model.RoleQuestion, Content: "旧问题一"},
		{Role: model.RoleAnswer, Content: "旧回答一"},
		{Role: model.RoleQuestion, Content: "旧问题二"},
		{Role: model.RoleAnswer, Content: "旧回答二"},
	}
	if _, err := svc.Generate(context.Background(), "什么是指针?", retrievedFixture(), history); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// system + 截断到 2 条的历史 + 当前问题
	if len(stub.messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(stub.messages))
	}
	sys := stub.messages[0]
	if sys.Role != "system" || !strings.Contains(sys.Content, "指针保存变量的地址") {
		t.Fatalf("system message must embed retrieved context: %+v", sys)
	}
	if stub.messages[1].Content != "旧问题二" || stub.messages[1].Role != "user" {
		t.Fatalf("history window must keep only the most recent turns, got %+v", stub.messages[1])
	}
	if stub.messages[2].Role != "assistant" {
		t.Fatalf("answer history must map to assistant role, got %+v", stub.messages[2])
	}
	if last := stub.messages[3]; last.Role != "user" || last.Content != "什么是指针?" {
		t.Fatalf("question must be the final user message, got %+v", last)
	}
}

func TestGenerateValidatesInput(t *testing.T) {
	svc := NewAnswerService(&stubLLM{}, config.LLMPromptConfig{}, 10)

	if _, err := svc.Generate(context.Background(), " ", retrievedFixture(), nil); err == nil {
		t.Fatal("expected error for blank question")
	}
	if _, err := svc.Generate(context.Background(), "什么是指针?", nil, nil); err == nil {
		t.Fatal("expected error for empty retrieval set")
	}
}
