package repository

import (
	"context"
	"errors"
	"time"

	"courseqa-go/internal/apperr"
	"courseqa-go/internal/model"

	"gorm.io/gorm"
)

// SessionRepository 定义了会话与消息的持久化接口。
// 消息只追加：一次问答的两条消息在同一事务内落库，
// 并发提问时各自追加两条，互不覆盖。
type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.ChatSession) error
	FindSession(ctx context.Context, sessionID string) (*model.ChatSession, error)
	ListSessions(ctx context.Context, studentID, tenantID string) ([]model.ChatSession, error)
	RenameSession(ctx context.Context, sessionID, title string) error
	// DeleteSession 级联删除会话及其全部消息。
	DeleteSession(ctx context.Context, sessionID string) error
	// AppendTurn 原子地追加一问一答并刷新会话活跃时间，返回回答消息。
	AppendTurn(ctx context.Context, question, answer *model.ChatMessage) error
	// History 返回最近 limit 条消息，按时间正序。limit <= 0 表示不限。
	History(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error)
	FindMessage(ctx context.Context, messageID uint) (*model.ChatMessage, error)
	UpdateFeedback(ctx context.Context, messageID uint, sentiment, comment string) error
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) CreateSession(ctx context.Context, session *model.ChatSession) error {
	if session.LastActiveAt.IsZero() {
		session.LastActiveAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) FindSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("session %s not found", sessionID)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) ListSessions(ctx context.Context, studentID, tenantID string) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND tenant_id = ?", studentID, tenantID).
		Order("last_active_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepository) RenameSession(ctx context.Context, sessionID, title string) error {
	return r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("id = ?", sessionID).
		Update("title", title).Error
}

func (r *sessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", sessionID).Delete(&model.ChatSession{}).Error
	})
}

func (r *sessionRepository) AppendTurn(ctx context.Context, question, answer *model.ChatMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(question).Error; err != nil {
			return err
		}
		if err := tx.Create(answer).Error; err != nil {
			return err
		}
		return tx.Model(&model.ChatSession{}).
			Where("id = ?", question.SessionID).
			Update("last_active_at", time.Now()).Error
	})
}

func (r *sessionRepository) History(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	// 取最近 limit 条后反转，保证返回顺序是时间正序
	query := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var messages []model.ChatMessage
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *sessionRepository) FindMessage(ctx context.Context, messageID uint) (*model.ChatMessage, error) {
	var message model.ChatMessage
	err := r.db.WithContext(ctx).First(&message, "id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("message %d not found", messageID)
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *sessionRepository) UpdateFeedback(ctx context.Context, messageID uint, sentiment, comment string) error {
	return r.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"feedback_sentiment": sentiment,
			"feedback_comment":   comment,
		}).Error
}
