package service

import (
	"context"
	"testing"
	"time"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/model"
	"courseqa-go/pkg/tasks"
)

type scriptedRetrieval struct {
	results []model.RetrievedChunk
	err     error
}

func (s *scriptedRetrieval) Retrieve(ctx context.Context, question, tenantID string) ([]model.RetrievedChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type scriptedAnswerer struct {
	answer *model.GeneratedAnswer
	calls  int
}

func (s *scriptedAnswerer) Generate(ctx context.Context, question string, retrieved []model.RetrievedChunk, history []model.ChatMessage) (*model.GeneratedAnswer, error) {
	s.calls++
	return s.answer, nil
}

type recordingNotifier struct {
	events chan tasks.AnswerRewardEvent
}

func (r *recordingNotifier) NotifyAnswer(event tasks.AnswerRewardEvent) error {
	r.events <- event
	return nil
}

func TestAskHappyPath(t *testing.T) {
	sessions := newSessionService(t)
	retrieval := &scriptedRetrieval{results: []model.RetrievedChunk{
		{VideoID: "v1", TenantID: "t1", ChunkIndex: 0, TextContent: "指针保存变量的地址", StartTimestamp: 10, Similarity: 0.9},
	}}
	answerer := &scriptedAnswerer{answer: &model.GeneratedAnswer{
		Text:       "指针保存的是变量的内存地址。",
		Confidence: 0.9,
		Citations:  []model.Citation{{VideoID: "v1", Timestamp: 10}},
	}}
	notifier := &recordingNotifier{events: make(chan tasks.AnswerRewardEvent, 1)}
	svc := NewChatService(sessions, retrieval, answerer, notifier, 10, "")

	result, err := svc.Ask(context.Background(), "什么是指针?", "s1", "t1", "")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if result.SessionID == "" || result.MessageID == 0 {
		t.Fatalf("result missing identifiers: %+v", result)
	}
	if len(result.Citations) != 1 || result.Citations[0].Timestamp != 10 {
		t.Fatalf("unexpected citations: %+v", result.Citations)
	}

	messages, err := sessions.History(context.Background(), "s1", result.SessionID, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected question and answer persisted, got %d messages", len(messages))
	}

	select {
	case event := <-notifier.events:
		if event.StudentID != "s1" || event.TenantID != "t1" || event.MessageID != result.MessageID {
			t.Fatalf("unexpected reward event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reward event was never published")
	}
}

func TestAskNoContextSkipsGeneration(t *testing.T) {
	sessions := newSessionService(t)
	retrieval := &scriptedRetrieval{err: apperr.NoContext()}
	answerer := &scriptedAnswerer{answer: &model.GeneratedAnswer{Text: "不应被调用"}}
	svc := NewChatService(sessions, retrieval, answerer, nil, 10, "没有找到相关内容。")

	result, err := svc.Ask(context.Background(), "完全无关的问题", "s1", "t1", "")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answerer.calls != 0 {
		t.Fatal("generator must not run when retrieval finds nothing")
	}
	if result.Answer != "没有找到相关内容。" || result.Confidence != 0 {
		t.Fatalf("expected canned answer with zero confidence, got %+v", result)
	}
	if len(result.Citations) != 0 {
		t.Fatalf("canned answer must carry no citations, got %+v", result.Citations)
	}

	// 兜底回答同样落库，保持会话历史完整
	messages, err := sessions.History(context.Background(), "s1", result.SessionID, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected canned turn persisted, got %d messages", len(messages))
	}
}

func TestAskWithoutSessionCreatesDistinctSessions(t *testing.T) {
	sessions := newSessionService(t)
	retrieval := &scriptedRetrieval{results: []model.RetrievedChunk{
		{VideoID: "v1", TenantID: "t1", TextContent: "内容", Similarity: 0.8},
	}}
	answerer := &scriptedAnswerer{answer: &model.GeneratedAnswer{Text: "回答", Confidence: 0.8}}
	svc := NewChatService(sessions, retrieval, answerer, nil, 10, "")

	first, err := svc.Ask(context.Background(), "问题一", "s1", "t1", "")
	if err != nil {
		t.Fatalf("first Ask failed: %v", err)
	}
	second, err := svc.Ask(context.Background(), "问题二", "s1", "t1", "")
	if err != nil {
		t.Fatalf("second Ask failed: %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Fatal("asks without a session id must create distinct sessions")
	}

	third, err := svc.Ask(context.Background(), "追问", "s1", "t1", first.SessionID)
	if err != nil {
		t.Fatalf("follow-up Ask failed: %v", err)
	}
	if third.SessionID != first.SessionID {
		t.Fatal("follow-up must stay in the same session")
	}
}

func TestAskValidatesQuestion(t *testing.T) {
	svc := NewChatService(newSessionService(t), &scriptedRetrieval{}, &scriptedAnswerer{}, nil, 10, "")
	if _, err := svc.Ask(context.Background(), "   ", "s1", "t1", ""); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for blank question, got %v", err)
	}
}

func TestAskRejectsForeignSession(t *testing.T) {
	sessions := newSessionService(t)
	retrieval := &scriptedRetrieval{results: []model.RetrievedChunk{{VideoID: "v1", TenantID: "t1", Similarity: 0.8}}}
	answerer := &scriptedAnswerer{answer: &model.GeneratedAnswer{Text: "回答"}}
	svc := NewChatService(sessions, retrieval, answerer, nil, 10, "")

	owned, err := svc.Ask(context.Background(), "问题", "s1", "t1", "")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if _, err := svc.Ask(context.Background(), "借用会话", "s2", "t1", owned.SessionID); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	// 本人带着另一个租户的令牌同样不能续接该会话
	if _, err := svc.Ask(context.Background(), "跨租户续接", "s1", "t2", owned.SessionID); !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error for foreign tenant, got %v", err)
	}
}
