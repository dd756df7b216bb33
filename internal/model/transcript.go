// Package model 包含了应用的数据模型定义。
package model

// TranscriptSegment 是转写稿中带时间戳的一段语音文本。
type TranscriptSegment struct {
	Index          int     `json:"index"`
	StartTimestamp float64 `json:"startTimestamp"`
	EndTimestamp   float64 `json:"endTimestamp"`
	Text           string  `json:"text"`
}

// Transcript 是一次视频转写的完整结果，只作为摄取输入消费，不独立持久化。
type Transcript struct {
	FullText string              `json:"fullText"`
	Segments []TranscriptSegment `json:"segments"`
	Language string              `json:"language"`
	Duration float64             `json:"duration"`
}
