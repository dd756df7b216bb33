package model

import "time"

// 消息角色与反馈取值。
const (
	RoleQuestion = "question"
	RoleAnswer   = "answer"

	FeedbackPositive = "positive"
	FeedbackNegative = "negative"
)

// ChatSession 代表一个学生与某个创作者内容之间的一条对话线。
// 一个会话只属于一个学生和一个租户，其中的消息不会跨租户混用。
type ChatSession struct {
	ID           string    `gorm:"primaryKey;type:varchar(36);column:id" json:"id"`
	StudentID    string    `gorm:"type:varchar(64);not null;index;column:student_id" json:"studentId"`
	TenantID     string    `gorm:"type:varchar(64);not null;index;column:tenant_id" json:"tenantId"`
	Title        string    `gorm:"type:varchar(255);column:title" json:"title"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	LastActiveAt time.Time `gorm:"column:last_active_at" json:"lastActiveAt"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// Citation 是回答中引用的一处视频出处。
type Citation struct {
	VideoID   string  `json:"videoId"`
	Timestamp float64 `json:"timestamp"`
	Snippet   string  `json:"snippet,omitempty"`
}

// ChatMessage 代表会话中的一条消息（提问或回答），只追加不修改；
// 反馈字段是唯一允许事后更新的部分。
type ChatMessage struct {
	ID                uint       `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	SessionID         string     `gorm:"type:varchar(36);not null;index;column:session_id" json:"sessionId"`
	Role              string     `gorm:"type:varchar(10);not null;column:role" json:"role"`
	Content           string     `gorm:"type:text;not null;column:content" json:"content"`
	Confidence        float64    `gorm:"column:confidence" json:"confidence"`
	Citations         []Citation `gorm:"serializer:json;column:citations" json:"citations,omitempty"`
	FeedbackSentiment string     `gorm:"type:varchar(10);column:feedback_sentiment" json:"feedbackSentiment,omitempty"`
	FeedbackComment   string     `gorm:"type:text;column:feedback_comment" json:"feedbackComment,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// GeneratedAnswer 是回答生成器的产物：回答文本、置信度与引用来源。
type GeneratedAnswer struct {
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	Citations  []Citation `json:"citations"`
}
