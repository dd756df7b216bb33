package service

import (
	"context"
	"strings"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/model"
	"courseqa-go/internal/repository"

	"github.com/google/uuid"
)

// SessionService 定义了会话生命周期与历史管理的接口。
// 每次读写前都先做归属校验：会话只对它的学生本人可见。
type SessionService interface {
	// GetOrCreate 加载并校验已有会话，或在未提供 sessionID 时
	// 为 (studentID, tenantID) 新建一个。并发的匿名提问各自建会话，
	// 绝不隐式合并。
	GetOrCreate(ctx context.Context, studentID, tenantID, sessionID string) (*model.ChatSession, error)
	List(ctx context.Context, studentID, tenantID string) ([]model.ChatSession, error)
	History(ctx context.Context, studentID, sessionID string, limit int) ([]model.ChatMessage, error)
	Rename(ctx context.Context, studentID, sessionID, title string) error
	Delete(ctx context.Context, studentID, sessionID string) error
	// AppendTurn 原子地追加一问一答，返回回答消息的标识。
	AppendTurn(ctx context.Context, session *model.ChatSession, question string, answer *model.GeneratedAnswer) (uint, error)
	RecordFeedback(ctx context.Context, studentID string, messageID uint, sentiment, comment string) error
}

type sessionService struct {
	repo repository.SessionRepository
}

// NewSessionService 创建一个新的 SessionService 实例。
func NewSessionService(repo repository.SessionRepository) SessionService {
	return &sessionService{repo: repo}
}

func (s *sessionService) GetOrCreate(ctx context.Context, studentID, tenantID, sessionID string) (*model.ChatSession, error) {
	if strings.TrimSpace(studentID) == "" || strings.TrimSpace(tenantID) == "" {
		return nil, apperr.Validationf("student id and tenant id are required")
	}

	if sessionID != "" {
		session, err := s.loadOwned(ctx, studentID, sessionID)
		if err != nil {
			return nil, err
		}
		// 会话的租户必须与调用方令牌里的租户一致，
		// 否则后续检索会跑在错误的租户范围里
		if session.TenantID != tenantID {
			return nil, apperr.Authorizationf("session %s belongs to another tenant", sessionID)
		}
		return session, nil
	}

	session := &model.ChatSession{
		ID:        uuid.NewString(),
		StudentID: studentID,
		TenantID:  tenantID,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionService) List(ctx context.Context, studentID, tenantID string) ([]model.ChatSession, error) {
	return s.repo.ListSessions(ctx, studentID, tenantID)
}

func (s *sessionService) History(ctx context.Context, studentID, sessionID string, limit int) ([]model.ChatMessage, error) {
	if _, err := s.loadOwned(ctx, studentID, sessionID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, sessionID, limit)
}

func (s *sessionService) Rename(ctx context.Context, studentID, sessionID, title string) error {
	if strings.TrimSpace(title) == "" {
		return apperr.Validationf("title is required")
	}
	if _, err := s.loadOwned(ctx, studentID, sessionID); err != nil {
		return err
	}
	return s.repo.RenameSession(ctx, sessionID, title)
}

func (s *sessionService) Delete(ctx context.Context, studentID, sessionID string) error {
	if _, err := s.loadOwned(ctx, studentID, sessionID); err != nil {
		return err
	}
	return s.repo.DeleteSession(ctx, sessionID)
}

func (s *sessionService) AppendTurn(ctx context.Context, session *model.ChatSession, question string, answer *model.GeneratedAnswer) (uint, error) {
	questionMsg := &model.ChatMessage{
		SessionID: session.ID,
		Role:      model.RoleQuestion,
		Content:   question,
	}
	answerMsg := &model.ChatMessage{
		SessionID:  session.ID,
		Role:       model.RoleAnswer,
		Content:    answer.Text,
		Confidence: answer.Confidence,
		Citations:  answer.Citations,
	}
	if err := s.repo.AppendTurn(ctx, questionMsg, answerMsg); err != nil {
		return 0, err
	}

	// 首轮问答用问题的前缀作为会话标题
	if session.Title == "" {
		title := question
		if runes := []rune(title); len(runes) > 60 {
			title = string(runes[:60]) + "…"
		}
		if err := s.repo.RenameSession(ctx, session.ID, title); err == nil {
			session.Title = title
		}
	}
	return answerMsg.ID, nil
}

func (s *sessionService) RecordFeedback(ctx context.Context, studentID string, messageID uint, sentiment, comment string) error {
	if sentiment != model.FeedbackPositive && sentiment != model.FeedbackNegative {
		return apperr.Validationf("sentiment must be %q or %q", model.FeedbackPositive, model.FeedbackNegative)
	}

	message, err := s.repo.FindMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.Role != model.RoleAnswer {
		return apperr.Validationf("feedback can only be recorded on answer messages")
	}
	if _, err := s.loadOwned(ctx, studentID, message.SessionID); err != nil {
		return err
	}
	return s.repo.UpdateFeedback(ctx, messageID, sentiment, comment)
}

// loadOwned 加载会话并校验其归属。归属不符按授权错误处理，
// 不向调用方区分“不存在”与“不是你的”之外的细节。
func (s *sessionService) loadOwned(ctx context.Context, studentID, sessionID string) (*model.ChatSession, error) {
	session, err := s.repo.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.StudentID != studentID {
		return nil, apperr.Authorizationf("session %s does not belong to caller", sessionID)
	}
	return session, nil
}
