// Package tasks defines the message structures exchanged over Kafka.
package tasks

// VideoTranscribedTask 是视频处理管线在转写完成后投递的摄取任务。
// 转写稿本体存放在 MinIO，消息只携带对象键。
type VideoTranscribedTask struct {
	VideoID       string `json:"video_id"`
	TenantID      string `json:"tenant_id"`
	Title         string `json:"title"`
	TranscriptKey string `json:"transcript_key"`
}

// AnswerRewardEvent 在一次回答成功后发往积分系统，尽力投递，失败不影响聊天请求。
type AnswerRewardEvent struct {
	StudentID  string  `json:"student_id"`
	TenantID   string  `json:"tenant_id"`
	SessionID  string  `json:"session_id"`
	MessageID  uint    `json:"message_id"`
	Confidence float64 `json:"confidence"`
}
