package service

import (
	"context"
	"strings"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/model"
	"courseqa-go/pkg/log"
	"courseqa-go/pkg/tasks"
)

// 检索为空时的兜底回复文案。
const defaultNoResultText = "抱歉，在本课程的视频内容中没有找到与你的问题相关的信息。可以换个问法，或确认该主题是否在课程范围内。"

// RewardNotifier 向积分系统发布回答事件。实现为 nil 时跳过通知。
type RewardNotifier interface {
	NotifyAnswer(event tasks.AnswerRewardEvent) error
}

// AskResult 是一次提问的完整结果。
type AskResult struct {
	SessionID  string           `json:"sessionId"`
	MessageID  uint             `json:"messageId"`
	Answer     string           `json:"answer"`
	Confidence float64          `json:"confidence"`
	Citations  []model.Citation `json:"citations"`
}

// ChatService 定义了问答编排的接口。
type ChatService interface {
	// Ask 执行一次完整的问答：会话定位 → 历史加载 → 检索 → 生成 → 持久化。
	// 检索无结果时不调用大模型，直接返回兜底回答并照常落库。
	Ask(ctx context.Context, question, studentID, tenantID, sessionID string) (*AskResult, error)
}

type chatService struct {
	sessions      SessionService
	retrieval     RetrievalService
	answers       AnswerService
	reward        RewardNotifier
	historyWindow int
	noResultText  string
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	sessions SessionService,
	retrieval RetrievalService,
	answers AnswerService,
	reward RewardNotifier,
	historyWindow int,
	noResultText string,
) ChatService {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	if noResultText == "" {
		noResultText = defaultNoResultText
	}
	return &chatService{
		sessions:      sessions,
		retrieval:     retrieval,
		answers:       answers,
		reward:        reward,
		historyWindow: historyWindow,
		noResultText:  noResultText,
	}
}

func (s *chatService) Ask(ctx context.Context, question, studentID, tenantID, sessionID string) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.Validationf("question is required")
	}

	session, err := s.sessions.GetOrCreate(ctx, studentID, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	history, err := s.sessions.History(ctx, studentID, session.ID, s.historyWindow)
	if err != nil {
		return nil, err
	}

	var answer *model.GeneratedAnswer
	retrieved, err := s.retrieval.Retrieve(ctx, question, session.TenantID)
	switch {
	case err == nil:
		answer, err = s.answers.Generate(ctx, question, retrieved, history)
		if err != nil {
			return nil, err
		}
	case apperr.IsKind(err, apperr.KindNoContext):
		// 没有分块越过阈值：给出兜底回答，不调用大模型
		log.Infof("[ChatService] 会话 %s 检索无结果, 返回兜底回答", session.ID)
		answer = &model.GeneratedAnswer{Text: s.noResultText, Confidence: 0}
	default:
		return nil, err
	}

	messageID, err := s.sessions.AppendTurn(ctx, session, question, answer)
	if err != nil {
		return nil, err
	}

	s.notifyReward(session, messageID, answer.Confidence)

	return &AskResult{
		SessionID:  session.ID,
		MessageID:  messageID,
		Answer:     answer.Text,
		Confidence: answer.Confidence,
		Citations:  answer.Citations,
	}, nil
}

// notifyReward 尽力发布回答奖励事件，失败只记日志。
func (s *chatService) notifyReward(session *model.ChatSession, messageID uint, confidence float64) {
	if s.reward == nil {
		return
	}
	event := tasks.AnswerRewardEvent{
		StudentID:  session.StudentID,
		TenantID:   session.TenantID,
		SessionID:  session.ID,
		MessageID:  messageID,
		Confidence: confidence,
	}
	go func() {
		if err := s.reward.NotifyAnswer(event); err != nil {
			log.Errorf("[ChatService] 发布回答奖励事件失败: %v", err)
		}
	}()
}
